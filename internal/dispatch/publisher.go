package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	eventVersion = 1

	headerEventType    = "x-event-type"
	headerEventVersion = "x-event-version"
)

type publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Publisher forwards status changes to Kafka for the notifier service.
type Publisher struct {
	Producer    publisher
	ServiceName string
}

func (p *Publisher) StatusChanged(ctx context.Context, c orders.StatusChange) error {
	payload, err := kafkax.Encode(c)
	if err != nil {
		return err
	}
	value, err := kafkax.Encode(orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.ServiceName,
		TraceID:       traceID(ctx),
		CorrelationID: c.Order.ID,
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	err = p.Producer.Publish(orders.PartitionKey(c.Order.ID), value,
		kafkago.Header{Key: headerEventType, Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: headerEventVersion, Value: []byte(strconv.Itoa(eventVersion))},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", orders.EventOrderStatusChanged, err)
	}
	return nil
}

type traceKey struct{}

// WithTraceID stores a request id that is copied onto published envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
