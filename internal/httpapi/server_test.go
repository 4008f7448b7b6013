package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/internal/audit"
	"github.com/swaprouter/engine/internal/domain/order"
	"github.com/swaprouter/engine/internal/notify"
)

type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
}

func newMemStore() *memStore {
	return &memStore{orders: make(map[uuid.UUID]*order.Order)}
}

func (s *memStore) Create(_ context.Context, input order.CreateInput) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	o := &order.Order{
		ID: uuid.New(), TokenIn: input.TokenIn, TokenOut: input.TokenOut, Amount: input.Amount,
		Status: order.StatusPending, SlippageTolerance: *input.SlippageTolerance, MaxRetries: *input.MaxRetries,
		CreatedAt: now, UpdatedAt: now,
	}
	s.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (s *memStore) FindByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound(id.String())
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) Update(_ context.Context, id uuid.UUID, partial order.Update) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound(id.String())
	}
	if partial.Status != nil {
		o.Status = *partial.Status
	}
	return o, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uuid.UUID, next order.Status) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound(id.String())
	}
	if !o.Status.CanTransition(next) {
		return nil, order.ErrIllegalTransition(o.Status, next)
	}
	o.Status = next
	cp := *o
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound(id.String())
	}
	if o.Status != order.StatusPending {
		return order.ErrDeleteNotAllowed(id.String())
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) Count(_ context.Context, query order.Query) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.orders {
		if query.Status != nil && o.Status != *query.Status {
			continue
		}
		n++
	}
	return n, nil
}

func (s *memStore) FindAll(_ context.Context, query order.Query) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if query.Status != nil && o.Status != *query.Status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) AppendAudit(context.Context, order.AuditRecord) error { return nil }
func (s *memStore) ListAudit(context.Context, uuid.UUID) ([]order.AuditRecord, error) {
	return nil, nil
}

func newTestServer() (*Server, *memStore) {
	store := newMemStore()
	bus := audit.New(store)
	hub := notify.New()
	return New(store, nil, bus, hub, nil, nil), store
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	srv, _ := newTestServer()
	body := strings.NewReader(`{"tokenIn":"SOL","tokenOut":"SOL","amount":"1"}`)
	req := httptest.NewRequest(http.MethodPost, ordersPath, body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateOrderPersistsAndReturnsOrder(t *testing.T) {
	srv, store := newTestServer()
	body := strings.NewReader(`{"tokenIn":"SOL","tokenOut":"USDC","amount":"1.5"}`)
	req := httptest.NewRequest(http.MethodPost, ordersPath, body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success bool      `json:"success"`
		Data    orderView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data.TokenIn != "SOL" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if _, err := store.FindByID(context.Background(), resp.Data.ID); err != nil {
		t.Fatalf("expected order persisted, got err: %v", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, ordersPrefix+uuid.New().String(), nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteOrderConflictWhenTerminal(t *testing.T) {
	srv, store := newTestServer()
	ord, _ := store.Create(context.Background(), order.CreateInput{
		TokenIn: "SOL", TokenOut: "USDC", Amount: decimal.NewFromInt(1),
		SlippageTolerance: &order.DefaultSlippageTolerance, MaxRetries: intPtr(order.DefaultMaxRetries),
	})
	completed := order.StatusCompleted
	_, _ = store.Update(context.Background(), ord.ID, order.Update{Status: &completed})

	req := httptest.NewRequest(http.MethodDelete, ordersPrefix+ord.ID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

// TestDeleteOrderCancelsNonTerminalOrder confirms DELETE performs the
// spec §6/§8 cancellation transition rather than the narrow
// pending-only hard-delete: a processing (non-pending, non-terminal)
// order must still be cancellable.
func TestDeleteOrderCancelsNonTerminalOrder(t *testing.T) {
	srv, store := newTestServer()
	ord, _ := store.Create(context.Background(), order.CreateInput{
		TokenIn: "SOL", TokenOut: "USDC", Amount: decimal.NewFromInt(1),
		SlippageTolerance: &order.DefaultSlippageTolerance, MaxRetries: intPtr(order.DefaultMaxRetries),
	})
	processing := order.StatusProcessing
	_, _ = store.Update(context.Background(), ord.ID, order.Update{Status: &processing})

	req := httptest.NewRequest(http.MethodDelete, ordersPrefix+ord.ID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, err := store.FindByID(context.Background(), ord.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if updated.Status != order.StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", updated.Status)
	}
}

func TestHealthReportsOKWithoutDependencies(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, healthPath, nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func intPtr(v int) *int { return &v }
