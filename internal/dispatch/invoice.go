package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

// Renderer turns an order into an invoice document.
type Renderer interface {
	RenderInvoice(ctx context.Context, o orders.Order) ([]byte, error)
	ContentType() string
	Extension() string
}

// TextInvoiceRenderer renders a fixed-width plain-text invoice.
type TextInvoiceRenderer struct {
	Seller string
}

func (TextInvoiceRenderer) ContentType() string { return "text/plain; charset=utf-8" }
func (TextInvoiceRenderer) Extension() string   { return "txt" }

func (r TextInvoiceRenderer) RenderInvoice(_ context.Context, o orders.Order) ([]byte, error) {
	var buf bytes.Buffer
	seller := r.Seller
	if seller == "" {
		seller = "Order Desk"
	}
	fmt.Fprintf(&buf, "%s\nINVOICE %s\nDate: %s\n\n", seller, o.ID, o.UpdatedAt.UTC().Format(time.DateOnly))
	fmt.Fprintf(&buf, "Bill to: %s <%s>\n", o.Customer.Name, o.Customer.Email)
	if o.Customer.Address != "" {
		fmt.Fprintf(&buf, "         %s\n", o.Customer.Address)
	}
	buf.WriteString("\n")

	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Item\tQty\tUnit\tAmount\t")
	for _, li := range o.LineItems {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t\n", li.Name, li.Quantity, li.UnitPrice.StringFixed(2), li.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "Total\t\t\t%s\t\n", o.TotalAmount.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return nil, err
	}

	fmt.Fprintf(&buf, "\nPayment: %s (%s)\n", o.PaymentStatus, o.PaymentMethod)
	if o.TrackingNumber != "" {
		fmt.Fprintf(&buf, "Tracking: %s\n", o.TrackingNumber)
	}
	return buf.Bytes(), nil
}
