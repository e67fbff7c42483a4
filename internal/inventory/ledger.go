package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"go.uber.org/zap"
)

// StockStore owns per-product quantities. Both methods must be single atomic
// operations against the backing store. A missing product is apperr.ProductNotFound.
type StockStore interface {
	// TakeStock subtracts qty only when at least qty is available. When it is not,
	// ok is false and available is the quantity observed by the failed attempt.
	TakeStock(ctx context.Context, productID string, qty int) (available int, ok bool, err error)
	PutStock(ctx context.Context, productID string, qty int) error
}

// BatchStockStore is implemented by stores that can take a whole cart in one
// transaction. The returned error carries the failing item index like ReserveAll.
type BatchStockStore interface {
	StockStore
	TakeAll(ctx context.Context, items []orders.ItemQty) error
}

type Ledger struct {
	Store StockStore
	Log   *zap.Logger
}

func New(store StockStore, log *zap.Logger) *Ledger {
	return &Ledger{Store: store, Log: log}
}

// Reserve atomically decrements productID by qty.
func (l *Ledger) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validation(apperr.CodeInvalidQuantity, "quantity must be positive")
	}
	available, ok, err := l.Store.TakeStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if !ok {
		return orders.InsufficientStockError(productID, available, qty)
	}
	return nil
}

// Restore atomically increments productID by qty.
func (l *Ledger) Restore(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return apperr.Validation(apperr.CodeInvalidQuantity, "quantity must be positive")
	}
	return l.Store.PutStock(ctx, productID, qty)
}

// ReserveAll reserves every item or none of them. On failure the error's metadata
// holds the index of the failing item.
func (l *Ledger) ReserveAll(ctx context.Context, items []orders.ItemQty) error {
	if b, ok := l.Store.(BatchStockStore); ok {
		for i, it := range items {
			if it.Qty <= 0 {
				return withIndex(apperr.Validation(apperr.CodeInvalidQuantity, "quantity must be positive"), i)
			}
		}
		return b.TakeAll(ctx, items)
	}

	for i, it := range items {
		if err := l.Reserve(ctx, it.ProductID, it.Qty); err != nil {
			l.rollback(ctx, items[:i])
			return withIndex(err, i)
		}
	}
	return nil
}

// RestoreAll returns every item's quantity, attempting all of them even if some fail.
func (l *Ledger) RestoreAll(ctx context.Context, items []orders.ItemQty) error {
	var errs []error
	for _, it := range items {
		if err := l.Restore(ctx, it.ProductID, it.Qty); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", it.ProductID, err))
		}
	}
	return errors.Join(errs...)
}

func (l *Ledger) rollback(ctx context.Context, reserved []orders.ItemQty) {
	if len(reserved) == 0 {
		return
	}
	if err := l.RestoreAll(context.WithoutCancel(ctx), reserved); err != nil {
		l.Log.Error("rollback partial reservation", zap.Int("items", len(reserved)), zap.Error(err))
	}
}

func withIndex(err error, i int) error {
	if e, ok := apperr.As(err); ok {
		e.WithMeta(map[string]any{"index": i})
	}
	return err
}

// FailedIndex returns the cart index recorded on a ReserveAll error.
func FailedIndex(err error) (int, bool) {
	e, ok := apperr.As(err)
	if !ok {
		return 0, false
	}
	i, ok := e.Meta["index"].(int)
	return i, ok
}
