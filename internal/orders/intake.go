package orders

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TotalTolerance is the largest accepted difference between a caller-supplied
// total and the computed one.
var TotalTolerance = decimal.New(1, -2)

type CartItem struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	Items         []CartItem
	Customer      CustomerSpec
	PaymentMethod PaymentMethod
	Notes         string
	// ClaimedTotal is advisory; it is only compared against the computed total.
	ClaimedTotal *decimal.Decimal
}

// CreateOrder validates the cart, reserves inventory for every line item and persists
// a Pending order. Any failure leaves inventory as it was before the call.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput, actor Actor) (Order, error) {
	if len(in.Items) == 0 {
		return Order{}, apperr.Validation(apperr.CodeEmptyCart, "order must contain at least one product")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return Order{}, apperr.Validation(apperr.CodeInvalidInput, "item %d: product is required", i)
		}
		if it.Quantity <= 0 {
			return Order{}, apperr.Validation(apperr.CodeInvalidQuantity, "item %d: quantity must be positive", i).
				WithMeta(map[string]any{"product": it.ProductID, "quantity": it.Quantity})
		}
	}
	method := in.PaymentMethod
	if method == "" {
		method = MethodCreditCard
	}
	if !method.Valid() {
		return Order{}, apperr.Validation(apperr.CodeInvalidPaymentMethod, "invalid payment method %q", method)
	}

	customer, err := s.resolveCustomer(ctx, in.Customer, actor)
	if err != nil {
		return Order{}, err
	}

	lines, err := s.snapshotLines(ctx, in.Items)
	if err != nil {
		return Order{}, err
	}
	total := ComputeTotal(lines)
	if in.ClaimedTotal != nil && in.ClaimedTotal.Sub(total).Abs().GreaterThan(TotalTolerance) {
		return Order{}, apperr.Validation(apperr.CodeTotalMismatch,
			"total %s does not match computed total %s", in.ClaimedTotal.StringFixed(2), total.StringFixed(2))
	}

	items := make([]ItemQty, 0, len(lines))
	for _, li := range lines {
		items = append(items, ItemQty{ProductID: li.ProductID, Qty: li.Quantity})
	}
	if err := s.Inventory.ReserveAll(ctx, items); err != nil {
		return Order{}, err
	}

	now := s.now()
	o := Order{
		ID:            s.newID(),
		CustomerID:    customer.ID,
		Customer:      customer.Snapshot(),
		LineItems:     lines,
		TotalAmount:   total,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		PaymentMethod: method,
		Notes:         noteLine(in.Notes, now),
		StatusHistory: []StatusEntry{{
			Status:    StatusPending,
			Timestamp: now,
			ActorID:   actor.ID,
			Notes:     "Order created",
		}},
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Orders.Create(ctx, o); err != nil {
		// The order never existed, so hand the stock back before reporting.
		if rerr := s.Inventory.RestoreAll(context.WithoutCancel(ctx), items); rerr != nil {
			s.Log.Error("restore after failed order insert",
				zap.String("order_id", o.ID), zap.Error(rerr))
		}
		return Order{}, fmt.Errorf("persist order: %w", err)
	}

	s.Log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Int("items", len(o.LineItems)),
		zap.String("total", o.TotalAmount.StringFixed(2)),
		zap.String("actor_id", actor.ID))
	return o, nil
}

func (s *Service) snapshotLines(ctx context.Context, items []CartItem) ([]LineItem, error) {
	lines := make([]LineItem, 0, len(items))
	for _, it := range items {
		p, err := s.Catalog.Product(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
		})
	}
	return lines, nil
}
