package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"go.uber.org/zap"
)

// Dispatcher turns a committed status change into a customer notification,
// attaching a rendered invoice when the order was delivered.
type Dispatcher struct {
	Notifier Notifier
	Renderer Renderer
	Log      *zap.Logger
}

// StatusChanged runs the side effects synchronously.
func (d *Dispatcher) StatusChanged(ctx context.Context, c orders.StatusChange) error {
	o := c.Order
	log := d.Log.With(zap.String("order_id", o.ID), zap.String("to", string(c.To)))

	if o.Customer.Email == "" {
		log.Warn("no customer email, skipping notification")
		return nil
	}

	msg := Message{
		To:      o.Customer.Email,
		Subject: fmt.Sprintf("Your order %s is now %s", shortID(o.ID), c.To),
		Body:    statusBody(c),
	}

	if c.WantsInvoice() && d.Renderer != nil {
		doc, err := d.Renderer.RenderInvoice(ctx, o)
		if err != nil {
			// The customer still hears about the delivery without the document.
			log.Error("render invoice", zap.Error(err))
		} else {
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    fmt.Sprintf("invoice-%s.%s", o.ID, d.Renderer.Extension()),
				ContentType: d.Renderer.ContentType(),
				Data:        doc,
			})
		}
	}

	if err := d.Notifier.Notify(ctx, msg); err != nil {
		return apperr.Dependency("notify customer", err)
	}
	log.Debug("customer notified", zap.Int("attachments", len(msg.Attachments)))
	return nil
}

func statusBody(c orders.StatusChange) string {
	o := c.Order
	var b strings.Builder
	name := o.Customer.Name
	if name == "" {
		name = "customer"
	}
	fmt.Fprintf(&b, "Hello %s,\n\n", name)
	fmt.Fprintf(&b, "The status of your order %s changed from %s to %s.\n", o.ID, c.From, c.To)
	switch c.To {
	case orders.StatusShipped:
		if o.TrackingNumber != "" {
			fmt.Fprintf(&b, "Tracking number: %s\n", o.TrackingNumber)
		}
		if o.EstimatedDelivery != nil {
			fmt.Fprintf(&b, "Estimated delivery: %s\n", o.EstimatedDelivery.Format(time.DateOnly))
		}
	case orders.StatusDelivered:
		b.WriteString("Your invoice is attached.\n")
	}
	if c.Notes != "" {
		fmt.Fprintf(&b, "\nNote: %s\n", c.Notes)
	}
	fmt.Fprintf(&b, "\nOrder total: %s\n", o.TotalAmount.StringFixed(2))
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
