package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Description string          `json:"description"`
	OwnerID     string          `json:"ownerId"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomerSnapshot is copied onto the order at creation and never refreshed.
type CustomerSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

func (c Customer) Snapshot() CustomerSnapshot {
	return CustomerSnapshot{Name: c.Name, Email: c.Email, Phone: c.Phone, Address: c.Address}
}

// LineItem carries the product name and price as they were when the order was placed.
type LineItem struct {
	ProductID string          `json:"product"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

type StatusEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"updatedBy"`
	Notes     string    `json:"notes,omitempty"`
}

type Order struct {
	ID                string           `json:"id"`
	CustomerID        string           `json:"customer"`
	Customer          CustomerSnapshot `json:"customerInfo"`
	LineItems         []LineItem       `json:"products"`
	TotalAmount       decimal.Decimal  `json:"totalAmount"`
	Status            Status           `json:"status"`
	PaymentStatus     PaymentStatus    `json:"paymentStatus"`
	PaymentMethod     PaymentMethod    `json:"paymentMethod"`
	Notes             string           `json:"notes,omitempty"`
	TrackingNumber    string           `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time       `json:"estimatedDelivery,omitempty"`
	StatusHistory     []StatusEntry    `json:"statusHistory"`
	CreatedBy         string           `json:"createdBy"`
	UpdatedBy         string           `json:"updatedBy,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	c := o
	c.LineItems = append([]LineItem(nil), o.LineItems...)
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	if o.EstimatedDelivery != nil {
		t := *o.EstimatedDelivery
		c.EstimatedDelivery = &t
	}
	return c
}

// ComputeTotal sums unit price times quantity over the line items.
func ComputeTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, li := range items {
		total = total.Add(li.Subtotal())
	}
	return total
}

type ItemQty struct {
	ProductID string `json:"product"`
	Qty       int    `json:"quantity"`
}

// Items returns the product/quantity pairs reserved for the order.
func (o Order) Items() []ItemQty {
	out := make([]ItemQty, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		out = append(out, ItemQty{ProductID: li.ProductID, Qty: li.Quantity})
	}
	return out
}
