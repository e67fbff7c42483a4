package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-order-lifecycle/internal/inventory"
	"github.com/ariefcatur/go-order-lifecycle/internal/memstore"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
	"github.com/ariefcatur/go-order-lifecycle/internal/redisx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

var (
	staffActor = orders.Actor{ID: "staff-1", Role: orders.RoleStaff}
	cleo       = orders.Actor{ID: "cust-1", Role: orders.RoleCustomer, Email: "cleo@mail.test"}
	dora       = orders.Actor{ID: "cust-2", Role: orders.RoleCustomer, Email: "dora@mail.test"}
)

type mapRedis struct {
	redis.Cmdable
	mu sync.Mutex
	kv map[string]string
}

func (m *mapRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mapRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.kv[key] = string(v)
	default:
		m.kv[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *mapRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.kv[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mapRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type testServer struct {
	h     http.Handler
	store *memstore.Store
}

func newTestServer(t *testing.T, cache *redisx.OrderCache) *testServer {
	t.Helper()
	st := memstore.New()
	st.PutProduct(orders.Product{ID: "P", Name: "Pen", SKU: "PEN", Price: decimal.RequireFromString("2.50"), Quantity: 5})
	st.PutProduct(orders.Product{ID: "Q", Name: "Quill", SKU: "QUI", Price: decimal.RequireFromString("10.00"), Quantity: 10})
	st.PutCustomer(orders.Customer{ID: cleo.ID, Name: "Cleo", Email: cleo.Email})
	st.PutCustomer(orders.Customer{ID: dora.ID, Name: "Dora", Email: dora.Email})

	svc := &orders.Service{
		Catalog:   st,
		Inventory: inventory.New(st, zap.NewNop()),
		Orders:    st,
		Customers: st,
		Log:       zap.NewNop(),
	}
	r := NewRouter(zap.NewNop())
	(&OrdersHandler{Service: svc, Products: st, Cache: cache, Log: zap.NewNop()}).Register(r, Authenticate(secret))
	return &testServer{h: r, store: st}
}

func token(t *testing.T, a orders.Actor) string {
	t.Helper()
	tok, err := SignActor(a, secret, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)
	return tok
}

type reply struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Details map[string]any  `json:"details"`
}

func (s *testServer) do(t *testing.T, a *orders.Actor, method, path string, body any, hdr ...string) (int, reply) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if a != nil {
		req.Header.Set("Authorization", "Bearer "+token(t, *a))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	var out reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func decodeOrder(t *testing.T, r reply) orders.Order {
	t.Helper()
	var o orders.Order
	require.NoError(t, json.Unmarshal(r.Data, &o))
	return o
}

func (s *testServer) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := s.store.Product(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

func TestRejectsMissingToken(t *testing.T) {
	s := newTestServer(t, nil)
	code, r := s.do(t, nil, http.MethodGet, "/products", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHENTICATED", r.Code)
}

func TestRejectsForeignSignature(t *testing.T) {
	s := newTestServer(t, nil)
	tok, err := SignActor(cleo, []byte("other"), jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/products", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, nil)
	code, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, code)

	o := decodeOrder(t, r)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, orders.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, cleo.ID, o.CustomerID)
	assert.True(t, decimal.RequireFromString("5.00").Equal(o.TotalAmount))
	assert.Equal(t, 3, s.stock(t, "P"))
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	s := newTestServer(t, nil)
	code, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "Q", "quantity": 1}, {"product": "P", "quantity": 6}},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INSUFFICIENT_STOCK", r.Code)
	assert.Equal(t, "P", r.Details["product"])
	assert.Equal(t, 10, s.stock(t, "Q"))
	assert.Equal(t, 5, s.stock(t, "P"))
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t, nil)

	code, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{"products": []any{}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "EMPTY_CART", r.Code)

	code, r = s.do(t, &cleo, http.MethodPost, "/orders", "{")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", r.Code)

	code, r = s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products":    []map[string]any{{"product": "P", "quantity": 1}},
		"totalAmount": "9.99",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "TOTAL_MISMATCH", r.Code)

	code, r = s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "nope", "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", r.Code)
}

func TestCreateOrderOnBehalfRequiresStaff(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{
		"products":     []map[string]any{{"product": "P", "quantity": 1}},
		"customerInfo": map[string]any{"name": "Eve", "email": "Eve@Mail.test"},
	}

	code, r := s.do(t, &cleo, http.MethodPost, "/orders", body)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", r.Code)

	code, r = s.do(t, &staffActor, http.MethodPost, "/orders", body)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "eve@mail.test", decodeOrder(t, r).Customer.Email)
}

func TestStatusLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	_, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	})
	id := decodeOrder(t, r).ID
	path := "/orders/" + id + "/status"

	code, r := s.do(t, &cleo, http.MethodPatch, path, map[string]any{"status": "Approved"})
	assert.Equal(t, http.StatusForbidden, code)

	code, r = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"status": "Delivered"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_TRANSITION", r.Code)

	code, r = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"status": "Bogus"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_STATUS", r.Code)

	code, _ = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"status": "Approved"})
	require.Equal(t, http.StatusOK, code)

	code, r = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"status": "Shipped"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "MISSING_TRACKING_NUMBER", r.Code)

	code, r = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"status": "Shipped", "trackingNumber": "TRK-1", "notes": "boxed"})
	require.Equal(t, http.StatusOK, code)
	o := decodeOrder(t, r)
	assert.Equal(t, orders.StatusShipped, o.Status)
	assert.Equal(t, "TRK-1", o.TrackingNumber)
	assert.Len(t, o.StatusHistory, 3)
}

func TestGetOrderVisibility(t *testing.T) {
	s := newTestServer(t, nil)
	_, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	})
	id := decodeOrder(t, r).ID

	code, _ := s.do(t, &cleo, http.MethodGet, "/orders/"+id, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, &staffActor, http.MethodGet, "/orders/"+id, nil)
	assert.Equal(t, http.StatusOK, code)

	code, r = s.do(t, &dora, http.MethodGet, "/orders/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "ORDER_NOT_FOUND", r.Code)
}

func TestUpdatePaymentOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	_, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	})
	path := "/orders/" + decodeOrder(t, r).ID + "/payment"

	code, r := s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"paymentStatus": "Paid", "paymentMethod": "Cash"})
	require.Equal(t, http.StatusOK, code)
	o := decodeOrder(t, r)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, orders.MethodCash, o.PaymentMethod)

	code, r = s.do(t, &staffActor, http.MethodPatch, path, map[string]any{"paymentStatus": "Owed", "paymentMethod": "Cash"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_PAYMENT_STATUS", r.Code)
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, nil)

	code, r := s.do(t, &cleo, http.MethodGet, "/products", nil)
	require.Equal(t, http.StatusOK, code)
	var ps []orders.Product
	require.NoError(t, json.Unmarshal(r.Data, &ps))
	require.Len(t, ps, 2)
	assert.Equal(t, "PEN", ps[0].SKU)

	code, r = s.do(t, &cleo, http.MethodGet, "/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", r.Code)
}

func TestIdempotentCreateReplays(t *testing.T) {
	rdb := &mapRedis{kv: map[string]string{}}
	s := newTestServer(t, redisx.NewOrderCache(rdb, time.Minute))
	body := map[string]any{"products": []map[string]any{{"product": "P", "quantity": 2}}}

	code, first := s.do(t, &cleo, http.MethodPost, "/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, code)
	code, second := s.do(t, &cleo, http.MethodPost, "/orders", body, "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, decodeOrder(t, first).ID, decodeOrder(t, second).ID)
	assert.Equal(t, 3, s.stock(t, "P"))
}

func TestConcurrentIdempotentCreatesPlaceOneOrder(t *testing.T) {
	rdb := &mapRedis{kv: map[string]string{}}
	s := newTestServer(t, redisx.NewOrderCache(rdb, time.Minute))
	tok := token(t, cleo)
	body := `{"products":[{"product":"P","quantity":2}]}`

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("Idempotency-Key", "k-race")
		wg.Add(1)
		go func(i int, req *http.Request) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			s.h.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i, req)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusOK, http.StatusConflict:
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 3, s.stock(t, "P"))

	code, r := s.do(t, &cleo, http.MethodPost, "/orders", body, "Idempotency-Key", "k-race")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, rdb.kv["idem:order:create:cust-1:k-race"], decodeOrder(t, r).ID)
}

func TestIdempotentCreateInFlightConflicts(t *testing.T) {
	rdb := &mapRedis{kv: map[string]string{"idem:order:create:cust-1:k-busy": "pending"}}
	s := newTestServer(t, redisx.NewOrderCache(rdb, time.Minute))

	code, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	}, "Idempotency-Key", "k-busy")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "REQUEST_IN_PROGRESS", r.Code)
	assert.Equal(t, 5, s.stock(t, "P"))
}

func TestFailedIdempotentCreateCanBeRetried(t *testing.T) {
	rdb := &mapRedis{kv: map[string]string{}}
	s := newTestServer(t, redisx.NewOrderCache(rdb, time.Minute))

	code, _ := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 50}},
	}, "Idempotency-Key", "k-retry")
	require.Equal(t, http.StatusConflict, code)
	assert.NotContains(t, rdb.kv, "idem:order:create:cust-1:k-retry")

	code, _ = s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	}, "Idempotency-Key", "k-retry")
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 4, s.stock(t, "P"))
}

func TestGetOrderServedFromCacheHonoursVisibility(t *testing.T) {
	rdb := &mapRedis{kv: map[string]string{}}
	s := newTestServer(t, redisx.NewOrderCache(rdb, time.Minute))
	_, r := s.do(t, &cleo, http.MethodPost, "/orders", map[string]any{
		"products": []map[string]any{{"product": "P", "quantity": 1}},
	})
	id := decodeOrder(t, r).ID
	require.Contains(t, rdb.kv, fmt.Sprintf(redisx.KeyOrder, id))

	code, _ := s.do(t, &dora, http.MethodGet, "/orders/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, r = s.do(t, &cleo, http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, decodeOrder(t, r).ID)
}
