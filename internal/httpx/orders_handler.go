package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/apperr"
	"github.com/ariefcatur/go-order-lifecycle/internal/dispatch"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductReader interface {
	Product(ctx context.Context, id string) (orders.Product, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Service  *orders.Service
	Products ProductReader
	Cache    *redisx.OrderCache
	Timeout  time.Duration
	Log      *zap.Logger
}

type cartItemReq struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type customerInfoReq struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type CreateOrderReq struct {
	Products      []cartItemReq    `json:"products"`
	Customer      string           `json:"customer,omitempty"`
	CustomerInfo  *customerInfoReq `json:"customerInfo,omitempty"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	TotalAmount   *decimal.Decimal `json:"totalAmount,omitempty"`
}

type UpdateStatusReq struct {
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	TrackingNumber    *string    `json:"trackingNumber,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

type UpdatePaymentReq struct {
	PaymentStatus string `json:"paymentStatus"`
	PaymentMethod string `json:"paymentMethod"`
	Notes         string `json:"notes,omitempty"`
}

type dataResp struct {
	Data any `json:"data"`
}

type errorResp struct {
	Message string         `json:"message"`
	Code    apperr.Code    `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Register mounts the order and product routes behind the authenticate middleware.
func (h *OrdersHandler) Register(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Post("/orders", h.createOrder)
		r.Get("/orders/{id}", h.getOrder)
		r.Patch("/orders/{id}/status", h.updateStatus)
		r.Patch("/orders/{id}/payment", h.updatePayment)
		r.Get("/products", h.listProducts)
		r.Get("/products/{id}", h.getProduct)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.HTTPStatus(err)
	e, ok := apperr.As(err)
	if !ok || code == http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Message: "internal error", Code: apperr.CodeInternal})
		return
	}
	writeJSON(w, code, errorResp{Message: e.Message, Code: e.Code, Details: e.Meta})
}

func (h *OrdersHandler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	t := h.Timeout
	if t <= 0 {
		t = 5 * time.Second
	}
	ctx := dispatch.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
	return context.WithTimeout(ctx, t)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation(apperr.CodeInvalidInput, "invalid json: %v", err)
	}
	return nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" {
		idemKey = actor.ID + ":" + idemKey
	}
	claimed, prevID, err := h.Cache.ClaimIdempotent(ctx, idemKey)
	if err != nil {
		h.Log.Warn("idempotency claim", zap.Error(err))
		claimed, idemKey = true, ""
	}
	if !claimed {
		if prevID == "" {
			writeError(w, r, apperr.Conflict(apperr.CodeRequestInProgress, "a request with this idempotency key is still in progress"))
			return
		}
		o, err := h.Service.Get(ctx, prevID, actor)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, dataResp{Data: o})
		return
	}

	in := orders.CreateOrderInput{
		PaymentMethod: orders.PaymentMethod(req.PaymentMethod),
		Notes:         req.Notes,
		ClaimedTotal:  req.TotalAmount,
	}
	for _, it := range req.Products {
		in.Items = append(in.Items, orders.CartItem{ProductID: it.Product, Quantity: it.Quantity})
	}
	switch {
	case req.Customer != "":
		in.Customer = orders.CustomerSpec{Mode: orders.CustomerByID, ID: req.Customer}
	case req.CustomerInfo != nil:
		in.Customer = orders.CustomerSpec{Mode: orders.CustomerByInfo, Info: orders.CustomerInfo{
			Name:    req.CustomerInfo.Name,
			Email:   req.CustomerInfo.Email,
			Phone:   req.CustomerInfo.Phone,
			Address: req.CustomerInfo.Address,
		}}
	default:
		in.Customer = orders.CustomerSpec{Mode: orders.CustomerSelf}
	}

	o, err := h.Service.CreateOrder(ctx, in, actor)
	if err != nil {
		if rerr := h.Cache.ReleaseIdempotent(context.WithoutCancel(ctx), idemKey); rerr != nil {
			h.Log.Warn("release idempotency key", zap.Error(rerr))
		}
		writeError(w, r, err)
		return
	}
	if err := h.Cache.RememberIdempotent(context.WithoutCancel(ctx), idemKey, o.ID); err != nil {
		h.Log.Warn("remember idempotency key", zap.String("order_id", o.ID), zap.Error(err))
	}
	h.cachePut(ctx, o)
	writeJSON(w, http.StatusCreated, dataResp{Data: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id := chi.URLParam(r, "id")

	ctx, cancel := h.ctx(r)
	defer cancel()

	if o, ok, err := h.Cache.Get(ctx, id); err != nil {
		h.Log.Warn("order cache read", zap.String("order_id", id), zap.Error(err))
	} else if ok {
		if !orders.CanView(actor, o) {
			writeError(w, r, orders.OrderNotFoundError(id))
			return
		}
		writeJSON(w, http.StatusOK, dataResp{Data: o})
		return
	}

	o, err := h.Service.Get(ctx, id, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cachePut(ctx, o)
	writeJSON(w, http.StatusOK, dataResp{Data: o})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.UpdateStatus(ctx, id, orders.TransitionInput{
		Status:            orders.Status(req.Status),
		Notes:             req.Notes,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
	}, actor)
	if err != nil {
		if apperr.HTTPStatus(err) == http.StatusConflict {
			h.cacheDrop(ctx, id)
		}
		writeError(w, r, err)
		return
	}
	h.cachePut(ctx, o)
	writeJSON(w, http.StatusOK, dataResp{Data: o})
}

func (h *OrdersHandler) updatePayment(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id := chi.URLParam(r, "id")
	var req UpdatePaymentReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	o, err := h.Service.UpdatePayment(ctx, id, orders.PaymentInput{
		Status: orders.PaymentStatus(req.PaymentStatus),
		Method: orders.PaymentMethod(req.PaymentMethod),
		Notes:  req.Notes,
	}, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cachePut(ctx, o)
	writeJSON(w, http.StatusOK, dataResp{Data: o})
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResp{Data: ps})
}

func (h *OrdersHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	p, err := h.Products.Product(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResp{Data: p})
}

func (h *OrdersHandler) cachePut(ctx context.Context, o orders.Order) {
	if err := h.Cache.Put(ctx, o); err != nil {
		h.Log.Warn("order cache write", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (h *OrdersHandler) cacheDrop(ctx context.Context, id string) {
	if err := h.Cache.Invalidate(ctx, id); err != nil {
		h.Log.Warn("order cache invalidate", zap.String("order_id", id), zap.Error(err))
	}
}
