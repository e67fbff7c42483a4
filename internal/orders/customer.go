package orders

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
)

type CustomerMode int

const (
	// CustomerSelf places the order for the calling actor.
	CustomerSelf CustomerMode = iota
	// CustomerByID references an existing customer. Staff only.
	CustomerByID
	// CustomerByInfo matches by email or provisions a new customer. Staff only.
	CustomerByInfo
)

type CustomerInfo struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type CustomerSpec struct {
	Mode CustomerMode
	ID   string
	Info CustomerInfo
}

func (s *Service) resolveCustomer(ctx context.Context, spec CustomerSpec, actor Actor) (Customer, error) {
	switch spec.Mode {
	case CustomerSelf:
		return s.Customers.CustomerByID(ctx, actor.ID)

	case CustomerByID:
		if !actor.IsStaff() {
			return Customer{}, apperr.Forbidden("only staff can order on behalf of a customer")
		}
		if strings.TrimSpace(spec.ID) == "" {
			return Customer{}, apperr.Validation(apperr.CodeInvalidCustomerInfo, "customer id is required")
		}
		return s.Customers.CustomerByID(ctx, spec.ID)

	case CustomerByInfo:
		if !actor.IsStaff() {
			return Customer{}, apperr.Forbidden("only staff can order on behalf of a customer")
		}
		info, err := normalizeInfo(spec.Info)
		if err != nil {
			return Customer{}, err
		}
		c, created, err := s.Customers.EnsureCustomer(ctx, Customer{
			ID:        s.newID(),
			Name:      info.Name,
			Email:     info.Email,
			Phone:     info.Phone,
			Address:   info.Address,
			CreatedAt: s.now(),
		})
		if err != nil {
			return Customer{}, fmt.Errorf("ensure customer: %w", err)
		}
		if created {
			s.Log.Sugar().Infow("customer provisioned", "customer_id", c.ID, "actor_id", actor.ID)
		}
		return c, nil
	}
	return Customer{}, apperr.Validation(apperr.CodeInvalidCustomerInfo, "unknown customer mode %d", spec.Mode)
}

func normalizeInfo(in CustomerInfo) (CustomerInfo, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	if in.Name == "" || in.Email == "" {
		return CustomerInfo{}, apperr.Validation(apperr.CodeInvalidCustomerInfo, "customer name and email are required")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil {
		return CustomerInfo{}, apperr.Validation(apperr.CodeInvalidCustomerInfo, "invalid customer email %q", in.Email)
	}
	// Only the bare address is a lookup key; a display name form must match it too.
	in.Email = strings.ToLower(addr.Address)
	return in, nil
}
