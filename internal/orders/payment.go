package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"go.uber.org/zap"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "Unpaid"
	PaymentPaid          PaymentStatus = "Paid"
	PaymentPartiallyPaid PaymentStatus = "PartiallyPaid"
	PaymentRefunded      PaymentStatus = "Refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPaid, PaymentPartiallyPaid, PaymentRefunded:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "CreditCard"
	MethodCash         PaymentMethod = "Cash"
	MethodBankTransfer PaymentMethod = "BankTransfer"
	MethodOther        PaymentMethod = "Other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCreditCard, MethodCash, MethodBankTransfer, MethodOther:
		return true
	}
	return false
}

type PaymentInput struct {
	Status PaymentStatus
	Method PaymentMethod
	Notes  string
}

// UpdatePayment replaces the payment fields and appends notes to the note log.
// It never touches the status history and triggers no side effects.
func (s *Service) UpdatePayment(ctx context.Context, orderID string, in PaymentInput, actor Actor) (Order, error) {
	if !actor.IsStaff() {
		return Order{}, apperr.Forbidden("only staff can update payments")
	}
	if !in.Status.Valid() {
		return Order{}, apperr.Validation(apperr.CodeInvalidPaymentStatus, "invalid payment status %q", in.Status)
	}
	if !in.Method.Valid() {
		return Order{}, apperr.Validation(apperr.CodeInvalidPaymentMethod, "invalid payment method %q", in.Method)
	}

	now := s.now()
	o, err := s.Orders.UpdatePayment(ctx, Order{
		ID:            orderID,
		PaymentStatus: in.Status,
		PaymentMethod: in.Method,
		UpdatedBy:     actor.ID,
		UpdatedAt:     now,
	}, noteLine(in.Notes, now))
	if err != nil {
		return Order{}, fmt.Errorf("update payment: %w", err)
	}
	s.Log.Info("payment updated",
		zap.String("order_id", o.ID),
		zap.String("payment_status", string(o.PaymentStatus)),
		zap.String("payment_method", string(o.PaymentMethod)),
		zap.String("actor_id", actor.ID))
	return o, nil
}

// noteLine formats a timestamped note log entry, or "" for a blank note.
func noteLine(note string, at time.Time) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return ""
	}
	return fmt.Sprintf("[%s] %s", at.UTC().Format(time.RFC3339), note)
}

// AppendNote adds line to the free-text note log. Stores use it to append under
// their own lock so concurrent writers never drop each other's lines.
func AppendNote(log, line string) string {
	if line == "" {
		return log
	}
	if log == "" {
		return line
	}
	return log + "\n" + line
}
