package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres implementation of Catalog, OrderStore and CustomerStore.
// Numeric columns travel as text so decimal values round-trip exactly.
type Repo struct{ DB *pgxpool.Pool }

const productColumns = `id, name, sku, category, price::text, quantity, description, owner_id, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &price, &p.Quantity,
		&p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Product{}, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return p, nil
}

func (r *Repo) Product(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ProductNotFoundError(id)
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CustomerByID(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `SELECT id, name, email, phone, address, created_at FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, CustomerNotFoundError(id)
	}
	return c, err
}

// EnsureCustomer inserts c unless a customer with the same email exists.
// Emails are stored lower-cased, which keeps the unique index case-insensitive.
func (r *Repo) EnsureCustomer(ctx context.Context, c Customer) (Customer, bool, error) {
	c.Email = strings.ToLower(c.Email)
	var id string
	err := r.DB.QueryRow(ctx, `
		INSERT INTO customers(id, name, email, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (email) DO NOTHING
		RETURNING id`,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.CreatedAt).Scan(&id)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, false, err
	}

	var existing Customer
	err = r.DB.QueryRow(ctx, `SELECT id, name, email, phone, address, created_at FROM customers WHERE email=$1`, c.Email).
		Scan(&existing.ID, &existing.Name, &existing.Email, &existing.Phone, &existing.Address, &existing.CreatedAt)
	if err != nil {
		return Customer{}, false, err
	}
	return existing, false, nil
}

func (r *Repo) Create(ctx context.Context, o Order) error {
	snapshot, err := json.Marshal(o.Customer)
	if err != nil {
		return err
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return err
	}

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, customer_id, customer_snapshot, total_amount, status, payment_status,
		                   payment_method, notes, tracking_number, estimated_delivery, status_history,
		                   created_by, updated_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4::text::numeric,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		o.ID, o.CustomerID, snapshot, o.TotalAmount.String(), string(o.Status), string(o.PaymentStatus),
		string(o.PaymentMethod), o.Notes, o.TrackingNumber, o.EstimatedDelivery, history,
		o.CreatedBy, o.UpdatedBy, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	for i, li := range o.LineItems {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, name, unit_price, qty)
			VALUES ($1,$2,$3,$4,$5::text::numeric,$6)`,
			o.ID, i, li.ProductID, li.Name, li.UnitPrice.String(), li.Quantity); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	var (
		o                 Order
		snapshot, history []byte
		total             string
		status, pstatus   string
		method            string
		eta               *time.Time
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, customer_id, customer_snapshot, total_amount::text, status, payment_status, payment_method,
		       notes, tracking_number, estimated_delivery, status_history, created_by, updated_by,
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &snapshot, &total, &status, &pstatus, &method,
			&o.Notes, &o.TrackingNumber, &eta, &history, &o.CreatedBy, &o.UpdatedBy,
			&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, OrderNotFoundError(id)
	}
	if err != nil {
		return Order{}, err
	}
	o.Status, o.PaymentStatus, o.PaymentMethod = Status(status), PaymentStatus(pstatus), PaymentMethod(method)
	o.EstimatedDelivery = eta
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return Order{}, fmt.Errorf("order %s total: %w", id, err)
	}
	if err := json.Unmarshal(snapshot, &o.Customer); err != nil {
		return Order{}, fmt.Errorf("order %s customer snapshot: %w", id, err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return Order{}, fmt.Errorf("order %s status history: %w", id, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, unit_price::text, qty FROM order_items
		WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			li    LineItem
			price string
		)
		if err := rows.Scan(&li.ProductID, &li.Name, &price, &li.Quantity); err != nil {
			return Order{}, err
		}
		if li.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return Order{}, fmt.Errorf("order %s item price: %w", id, err)
		}
		o.LineItems = append(o.LineItems, li)
	}
	return o, rows.Err()
}

// appendNoteSQL appends a note line to the notes column inside the UPDATE itself,
// so writers racing on the same order all keep their lines.
const appendNoteSQL = `CASE WHEN %[1]s = '' THEN notes WHEN notes = '' THEN %[1]s ELSE notes || E'\n' || %[1]s END`

// UpdateLifecycle writes the lifecycle fields with a compare-and-set on status.
func (r *Repo) UpdateLifecycle(ctx context.Context, o Order, expected Status, note string) (Order, error) {
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return Order{}, err
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, tracking_number=$3, estimated_delivery=$4, status_history=$5,
		    notes=`+fmt.Sprintf(appendNoteSQL, "$6::text")+`, updated_by=$7, updated_at=$8
		WHERE id=$1 AND status=$9`,
		o.ID, string(o.Status), o.TrackingNumber, o.EstimatedDelivery, history,
		note, o.UpdatedBy, o.UpdatedAt, string(expected))
	if err != nil {
		return Order{}, err
	}
	if ct.RowsAffected() != 1 {
		return Order{}, r.missingOrConflict(ctx, o.ID)
	}
	return r.Get(ctx, o.ID)
}

func (r *Repo) UpdatePayment(ctx context.Context, o Order, note string) (Order, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET payment_status=$2, payment_method=$3, notes=`+fmt.Sprintf(appendNoteSQL, "$4::text")+`,
		    updated_by=$5, updated_at=$6
		WHERE id=$1`,
		o.ID, string(o.PaymentStatus), string(o.PaymentMethod), note, o.UpdatedBy, o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if ct.RowsAffected() == 0 {
		return Order{}, OrderNotFoundError(o.ID)
	}
	return r.Get(ctx, o.ID)
}

func (r *Repo) missingOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return OrderNotFoundError(id)
	}
	return ConcurrentUpdateError(id)
}
