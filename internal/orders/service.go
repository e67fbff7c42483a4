package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Catalog looks products up by id; a missing product is apperr.ProductNotFound.
type Catalog interface {
	Product(ctx context.Context, id string) (Product, error)
}

// Reserver is the inventory ledger as seen by order code.
type Reserver interface {
	ReserveAll(ctx context.Context, items []ItemQty) error
	RestoreAll(ctx context.Context, items []ItemQty) error
}

type OrderStore interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// UpdateLifecycle persists status, tracking, delivery estimate and history only if
	// the stored status still equals expected, appends note to the stored note log
	// and returns the order as stored. o.Notes is ignored.
	UpdateLifecycle(ctx context.Context, o Order, expected Status, note string) (Order, error)
	// UpdatePayment sets payment status and method on order o.ID, appends note and
	// returns the order as stored.
	UpdatePayment(ctx context.Context, o Order, note string) (Order, error)
}

type CustomerStore interface {
	CustomerByID(ctx context.Context, id string) (Customer, error)
	// EnsureCustomer returns the customer with c.Email, creating it from c when absent.
	EnsureCustomer(ctx context.Context, c Customer) (Customer, bool, error)
}

// SideEffects receives committed transitions. Errors are logged by the caller and
// never change the outcome of the transition.
type SideEffects interface {
	StatusChanged(ctx context.Context, change StatusChange) error
}

type Service struct {
	Catalog   Catalog
	Inventory Reserver
	Orders    OrderStore
	Customers CustomerStore
	Effects   SideEffects
	Log       *zap.Logger

	// RestoreStockOnCancel returns reserved quantities to inventory when an
	// order is cancelled.
	RestoreStockOnCancel bool

	Now   func() time.Time
	NewID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// Get returns an order visible to actor.
func (s *Service) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !CanView(actor, o) {
		// Hide existence from other customers.
		return Order{}, OrderNotFoundError(orderID)
	}
	return o, nil
}
