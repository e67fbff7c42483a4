package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups codes by how callers should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindDependency
)

type Code string

const (
	CodeEmptyCart             Code = "EMPTY_CART"
	CodeInvalidQuantity       Code = "INVALID_QUANTITY"
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeProductNotFound       Code = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock     Code = "INSUFFICIENT_STOCK"
	CodeInvalidCustomerInfo   Code = "INVALID_CUSTOMER_INFO"
	CodeCustomerNotFound      Code = "CUSTOMER_NOT_FOUND"
	CodeTotalMismatch         Code = "TOTAL_MISMATCH"
	CodeOrderNotFound         Code = "ORDER_NOT_FOUND"
	CodeInvalidStatus         Code = "INVALID_STATUS"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeMissingTrackingNumber Code = "MISSING_TRACKING_NUMBER"
	CodeInvalidPaymentStatus  Code = "INVALID_PAYMENT_STATUS"
	CodeInvalidPaymentMethod  Code = "INVALID_PAYMENT_METHOD"
	CodeConcurrentUpdate      Code = "CONCURRENT_UPDATE"
	CodeRequestInProgress     Code = "REQUEST_IN_PROGRESS"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
	CodeForbidden             Code = "FORBIDDEN"
	CodeDependency            Code = "DEPENDENCY_FAILED"
	CodeInternal              Code = "INTERNAL"
)

// Error is the domain error carried from the core to the transport layer.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Meta    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error by code, so errors.Is(err, apperr.InsufficientStock) style
// sentinels work regardless of message or metadata.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func newErr(kind Kind, code Code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(code Code, format string, args ...any) *Error {
	return newErr(KindValidation, code, format, args...)
}

func NotFound(code Code, format string, args ...any) *Error {
	return newErr(KindNotFound, code, format, args...)
}

func Conflict(code Code, format string, args ...any) *Error {
	return newErr(KindConflict, code, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newErr(KindAuthorization, CodeForbidden, format, args...)
}

func Unauthenticated(format string, args ...any) *Error {
	return newErr(KindAuthorization, CodeUnauthenticated, format, args...)
}

// Dependency wraps a failure of an external collaborator (mail, renderer).
func Dependency(message string, cause error) *Error {
	return &Error{Kind: KindDependency, Code: CodeDependency, Message: message, Cause: cause}
}

// WithMeta attaches structured context that is echoed in HTTP error bodies.
func (e *Error) WithMeta(kv map[string]any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	for k, v := range kv {
		e.Meta[k] = v
	}
	return e
}

// Sentinels for errors.Is comparisons.
var (
	EmptyCart             = &Error{Code: CodeEmptyCart}
	ProductNotFound       = &Error{Code: CodeProductNotFound}
	InsufficientStock     = &Error{Code: CodeInsufficientStock}
	InvalidCustomerInfo   = &Error{Code: CodeInvalidCustomerInfo}
	CustomerNotFound      = &Error{Code: CodeCustomerNotFound}
	TotalMismatch         = &Error{Code: CodeTotalMismatch}
	OrderNotFound         = &Error{Code: CodeOrderNotFound}
	InvalidTransition     = &Error{Code: CodeInvalidTransition}
	MissingTrackingNumber = &Error{Code: CodeMissingTrackingNumber}
	ConcurrentUpdate      = &Error{Code: CodeConcurrentUpdate}
	RequestInProgress     = &Error{Code: CodeRequestInProgress}
)

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps an error to the response code used by the REST surface.
func HTTPStatus(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		switch e.Code {
		case CodeInvalidTransition, CodeMissingTrackingNumber:
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case KindAuthorization:
		if e.Code == CodeUnauthenticated {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case KindDependency:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
