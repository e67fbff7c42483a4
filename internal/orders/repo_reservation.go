package orders

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StockRepo applies quantity changes with single conditional statements, so two
// concurrent reservations can never both pass the availability check.
type StockRepo struct{ DB *pgxpool.Pool }

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const takeStockSQL = `
	UPDATE products SET quantity = quantity - $2, updated_at = now()
	WHERE id=$1 AND quantity >= $2
	RETURNING quantity`

func takeStock(ctx context.Context, q querier, productID string, qty int) (int, bool, error) {
	var left int
	err := q.QueryRow(ctx, takeStockSQL, productID, qty).Scan(&left)
	if err == nil {
		return left, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	// Nothing matched: either the product is missing or it is short.
	var available int
	err = q.QueryRow(ctx, `SELECT quantity FROM products WHERE id=$1`, productID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ProductNotFoundError(productID)
	}
	if err != nil {
		return 0, false, err
	}
	return available, false, nil
}

func (r *StockRepo) TakeStock(ctx context.Context, productID string, qty int) (int, bool, error) {
	return takeStock(ctx, r.DB, productID, qty)
}

func (r *StockRepo) PutStock(ctx context.Context, productID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `UPDATE products SET quantity = quantity + $2, updated_at = now() WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ProductNotFoundError(productID)
	}
	return nil
}

// TakeAll reserves every item inside one transaction; any shortage rolls the whole
// cart back. Rows are locked in product id order to avoid deadlocks between carts.
func (r *StockRepo) TakeAll(ctx context.Context, items []ItemQty) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return items[order[a]].ProductID < items[order[b]].ProductID })

	for _, i := range order {
		it := items[i]
		available, ok, err := takeStock(ctx, tx, it.ProductID, it.Qty)
		if err != nil {
			if e, isApp := apperr.As(err); isApp {
				return e.WithMeta(map[string]any{"index": i})
			}
			return err
		}
		if !ok {
			return InsufficientStockError(it.ProductID, available, it.Qty).WithMeta(map[string]any{"index": i})
		}
	}
	return tx.Commit(ctx)
}
