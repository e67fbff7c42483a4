package orders_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	staff    = orders.Actor{ID: "staff-1", Role: orders.RoleStaff, Name: "Sam", Email: "sam@shop.test"}
	customer = orders.Actor{ID: "cust-1", Role: orders.RoleCustomer, Name: "Cleo", Email: "cleo@mail.test"}
	fixedNow = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
)

type recordingEffects struct {
	mu      sync.Mutex
	changes []orders.StatusChange
	err     error
}

func (r *recordingEffects) StatusChanged(_ context.Context, c orders.StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return r.err
}

func (r *recordingEffects) all() []orders.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orders.StatusChange(nil), r.changes...)
}

type fixture struct {
	svc     *orders.Service
	store   *memstore.Store
	effects *recordingEffects
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "P", Name: "Pen", SKU: "PEN", Price: decimal.RequireFromString("2.50"), Quantity: 5})
	st.PutProduct(orders.Product{ID: "Q", Name: "Quill", SKU: "QUI", Price: decimal.RequireFromString("10.00"), Quantity: 10})
	st.PutCustomer(orders.Customer{ID: customer.ID, Name: customer.Name, Email: customer.Email, Phone: "555-0100"})

	eff := &recordingEffects{}
	var seq int
	var mu sync.Mutex
	svc := &orders.Service{
		Catalog:   st,
		Inventory: inventory.New(st, zap.NewNop()),
		Orders:    st,
		Customers: st,
		Effects:   eff,
		Log:       zap.NewNop(),
		Now:       func() time.Time { return fixedNow },
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	}
	return &fixture{svc: svc, store: st, effects: eff}
}

func (f *fixture) qty(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.Product(context.Background(), id)
	if err != nil {
		t.Fatalf("product %s: %v", id, err)
	}
	return p.Quantity
}

func (f *fixture) placeOrder(t *testing.T) orders.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), orders.CreateOrderInput{
		Items: []orders.CartItem{{ProductID: "P", Quantity: 1}},
	}, customer)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// advance walks an order along the happy path up to target.
func (f *fixture) advance(t *testing.T, id string, target orders.Status) orders.Order {
	t.Helper()
	tracking := "TRK-1"
	path := []orders.Status{orders.StatusApproved, orders.StatusShipped, orders.StatusDelivered}
	var (
		o   orders.Order
		err error
	)
	for _, s := range path {
		o, err = f.svc.UpdateStatus(context.Background(), id, orders.TransitionInput{Status: s, TrackingNumber: &tracking}, staff)
		if err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
		if s == target {
			return o
		}
	}
	return o
}

var errBoom = errors.New("boom")

func strptr(s string) *string { return &s }
