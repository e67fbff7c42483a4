package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"go.uber.org/zap"
)

type TransitionInput struct {
	Status            Status
	Notes             string
	TrackingNumber    *string
	EstimatedDelivery *time.Time
}

// Apply runs one step of the order state machine against o in place.
//
// A target equal to the current status only updates tracking, delivery estimate and
// notes; it reports changed=false and adds no history entry. Any other target must be
// an edge of the transition table. Shipping without a tracking number is reported as
// such before the edge is checked. o is left untouched when an error is returned.
func Apply(o *Order, in TransitionInput, actor Actor, now time.Time) (changed bool, err error) {
	if !in.Status.Valid() {
		return false, apperr.Validation(apperr.CodeInvalidStatus, "invalid status %q", in.Status)
	}

	if in.Status == o.Status {
		applyMetadata(o, in)
		o.Notes = AppendNote(o.Notes, noteLine(in.Notes, now))
		o.UpdatedBy = actor.ID
		o.UpdatedAt = now
		return false, nil
	}

	if in.Status == StatusShipped && (in.TrackingNumber == nil || strings.TrimSpace(*in.TrackingNumber) == "") {
		return false, apperr.Conflict(apperr.CodeMissingTrackingNumber, "tracking number is required to ship an order")
	}
	if !CanTransition(o.Status, in.Status) {
		allowed := AllowedNext(o.Status)
		return false, apperr.Conflict(apperr.CodeInvalidTransition,
			"cannot change status from %s to %s", o.Status, in.Status).
			WithMeta(map[string]any{"from": o.Status, "to": in.Status, "allowed": allowed})
	}

	applyMetadata(o, in)
	o.Status = in.Status
	o.StatusHistory = append(o.StatusHistory, StatusEntry{
		Status:    in.Status,
		Timestamp: now,
		ActorID:   actor.ID,
		Notes:     strings.TrimSpace(in.Notes),
	})
	o.UpdatedBy = actor.ID
	o.UpdatedAt = now
	return true, nil
}

func applyMetadata(o *Order, in TransitionInput) {
	if in.TrackingNumber != nil {
		if t := strings.TrimSpace(*in.TrackingNumber); t != "" {
			o.TrackingNumber = t
		}
	}
	if in.EstimatedDelivery != nil {
		t := in.EstimatedDelivery.UTC()
		o.EstimatedDelivery = &t
	}
}

// UpdateStatus moves an order through the lifecycle. Side effects are requested only
// after the new state is persisted, and their failure is logged, never returned.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, in TransitionInput, actor Actor) (Order, error) {
	if !actor.IsStaff() {
		return Order{}, apperr.Forbidden("only staff can update order status")
	}

	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	from := o.Status

	now := s.now()
	next := o.Clone()
	changed, err := Apply(&next, in, actor, now)
	if err != nil {
		return Order{}, err
	}
	// Transition notes live in the history entry; only metadata edits go to the log.
	var note string
	if !changed {
		note = noteLine(in.Notes, now)
	}
	next, err = s.Orders.UpdateLifecycle(ctx, next, from, note)
	if err != nil {
		return Order{}, fmt.Errorf("update status: %w", err)
	}
	if !changed {
		return next, nil
	}

	s.Log.Info("order status changed",
		zap.String("order_id", next.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next.Status)),
		zap.String("actor_id", actor.ID))

	if next.Status == StatusCancelled && s.RestoreStockOnCancel {
		if err := s.Inventory.RestoreAll(context.WithoutCancel(ctx), next.Items()); err != nil {
			s.Log.Error("restore stock on cancel", zap.String("order_id", next.ID), zap.Error(err))
		}
	}

	s.requestSideEffects(ctx, StatusChange{
		From:       from,
		To:         next.Status,
		ActorID:    actor.ID,
		Notes:      strings.TrimSpace(in.Notes),
		OccurredAt: next.UpdatedAt,
		Order:      next.Clone(),
	})
	return next, nil
}

func (s *Service) requestSideEffects(ctx context.Context, change StatusChange) {
	if s.Effects == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.Log.Error("side effect dispatch panicked",
				zap.String("order_id", change.Order.ID), zap.Any("panic", r))
		}
	}()
	if err := s.Effects.StatusChanged(context.WithoutCancel(ctx), change); err != nil {
		s.Log.Warn("side effect dispatch failed",
			zap.String("order_id", change.Order.ID),
			zap.String("to", string(change.To)),
			zap.Error(err))
	}
}
