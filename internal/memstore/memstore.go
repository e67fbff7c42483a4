// Package memstore keeps products, customers and orders in process memory with the
// same atomicity guarantees as the Postgres repositories.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

type Store struct {
	mu        sync.Mutex
	products  map[string]orders.Product
	customers map[string]orders.Customer
	byEmail   map[string]string
	orders    map[string]orders.Order

	// FailCreate, when set, is returned by the next Create calls. Used to exercise
	// compensation paths.
	FailCreate error
}

func New() *Store {
	return &Store{
		products:  map[string]orders.Product{},
		customers: map[string]orders.Customer{},
		byEmail:   map[string]string{},
		orders:    map[string]orders.Order{},
	}
}

func (s *Store) PutProduct(p orders.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Store) Product(_ context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, orders.ProductNotFoundError(id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) TakeStock(_ context.Context, productID string, qty int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return 0, false, orders.ProductNotFoundError(productID)
	}
	if p.Quantity < qty {
		return p.Quantity, false, nil
	}
	p.Quantity -= qty
	s.products[productID] = p
	return p.Quantity, true, nil
}

func (s *Store) PutStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return orders.ProductNotFoundError(productID)
	}
	p.Quantity += qty
	s.products[productID] = p
	return nil
}

func (s *Store) PutCustomer(c orders.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
	s.byEmail[strings.ToLower(c.Email)] = c.ID
}

func (s *Store) CustomerByID(_ context.Context, id string) (orders.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return orders.Customer{}, orders.CustomerNotFoundError(id)
	}
	return c, nil
}

func (s *Store) EnsureCustomer(_ context.Context, c orders.Customer) (orders.Customer, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(c.Email)
	if id, ok := s.byEmail[key]; ok {
		return s.customers[id], false, nil
	}
	s.customers[c.ID] = c
	s.byEmail[key] = c.ID
	return c, true, nil
}

func (s *Store) Create(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCreate != nil {
		return s.FailCreate
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *Store) Get(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.OrderNotFoundError(id)
	}
	return o.Clone(), nil
}

func (s *Store) UpdateLifecycle(_ context.Context, o orders.Order, expected orders.Status, note string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return orders.Order{}, orders.OrderNotFoundError(o.ID)
	}
	if cur.Status != expected {
		return orders.Order{}, orders.ConcurrentUpdateError(o.ID)
	}
	cur.Status = o.Status
	cur.TrackingNumber = o.TrackingNumber
	cur.EstimatedDelivery = o.EstimatedDelivery
	cur.StatusHistory = o.StatusHistory
	cur.Notes = orders.AppendNote(cur.Notes, note)
	cur.UpdatedBy = o.UpdatedBy
	cur.UpdatedAt = o.UpdatedAt
	s.orders[o.ID] = cur.Clone()
	return cur.Clone(), nil
}

func (s *Store) UpdatePayment(_ context.Context, o orders.Order, note string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return orders.Order{}, orders.OrderNotFoundError(o.ID)
	}
	cur.PaymentStatus = o.PaymentStatus
	cur.PaymentMethod = o.PaymentMethod
	cur.Notes = orders.AppendNote(cur.Notes, note)
	cur.UpdatedBy = o.UpdatedBy
	cur.UpdatedAt = o.UpdatedAt
	s.orders[o.ID] = cur
	return cur.Clone(), nil
}
