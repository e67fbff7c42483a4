package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/ariefcatur/go-order-lifecycle/internal/kafka"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler consumes OrderStatusChanged events and runs the side effects once per event.
type Handler struct {
	Effects     orders.SideEffects
	Redis       redis.Cmdable
	ServiceName string
	Log         *zap.Logger
}

// HandleStatusChanged is installed as the Kafka consumer handler. Only undecodable
// messages are returned as errors, marked permanent; side-effect failures are logged
// and committed. The dedup key is claimed only once the event has decoded.
func (h *Handler) HandleStatusChanged(ctx context.Context, m kafkago.Message) error {
	if t, ok := kafkax.Header(m, headerEventType); ok && t != orders.EventOrderStatusChanged {
		return nil
	}
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return kafkax.Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if env.EventType != orders.EventOrderStatusChanged {
		return nil
	}

	change, err := kafkax.UnwrapPayload[orders.StatusChange](env.Payload)
	if err != nil {
		return kafkax.Permanent(fmt.Errorf("event %s: %w", env.EventID, err))
	}

	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyDedup, h.ServiceName, env.EventID)
		fresh, err := redisx.Claim(ctx, h.Redis, key, redisx.TTLDedup)
		if err != nil {
			// Without Redis a duplicate notification is preferable to none.
			h.Log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
		} else if !fresh {
			h.Log.Debug("duplicate event", zap.String("event_id", env.EventID))
			return nil
		}
	}

	if err := h.Effects.StatusChanged(ctx, change); err != nil {
		h.Log.Warn("side effect failed",
			zap.String("event_id", env.EventID),
			zap.String("order_id", change.Order.ID),
			zap.String("to", string(change.To)),
			zap.String("trace_id", env.TraceID),
			zap.Error(err))
	}
	return nil
}
