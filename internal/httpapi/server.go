// Package httpapi exposes the engine's JSON HTTP and WebSocket surface
// (spec §6): order creation/lookup/listing/cancellation, a health
// check, and a WebSocket endpoint that creates an order and streams
// its lifecycle back to the caller.
package httpapi

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/swaprouter/engine/errs"
	"github.com/swaprouter/engine/internal/audit"
	"github.com/swaprouter/engine/internal/domain/order"
	"github.com/swaprouter/engine/internal/notify"
	"github.com/swaprouter/engine/internal/observability"
	"github.com/swaprouter/engine/internal/queue"
)

const (
	ordersPath   = "/api/orders"
	ordersPrefix = ordersPath + "/"
	healthPath   = "/health"

	countSegment   = "count"
	executeSegment = "execute"
)

type handlerFunc func(http.ResponseWriter, *http.Request)

// Server wires the order store, job queue, audit bus and notification
// hub into the HTTP/WebSocket surface.
type Server struct {
	store     order.Store
	queue     *queue.Queue
	bus       *audit.Bus
	hub       *notify.Hub
	pg        *pgxpool.Pool
	redis     *redis.Client
	startedAt time.Time
}

// New constructs a Server. pg and redis are used only for the health
// check's dependency pings and may be nil in tests.
func New(store order.Store, q *queue.Queue, bus *audit.Bus, hub *notify.Hub, pg *pgxpool.Pool, redisClient *redis.Client) *Server {
	return &Server{store: store, queue: q, bus: bus, hub: hub, pg: pg, redis: redisClient, startedAt: time.Now().UTC()}
}

// Handler returns the root http.Handler, CORS-wrapped.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ordersPath, s.methodHandlers(map[string]handlerFunc{
		http.MethodPost: s.createOrder,
		http.MethodGet:  s.listOrders,
	}))
	mux.HandleFunc(ordersPrefix, s.dispatchOrderDetail)
	mux.HandleFunc(healthPath, s.health)
	return withCORS(mux)
}

func (s *Server) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, errs.New("httpapi", errs.CodeValidation,
		errs.WithHTTP(http.StatusMethodNotAllowed), errs.WithMessage("method not allowed")))
}

// dispatchOrderDetail routes the /api/orders/<rest> subtree: the
// fixed "count" and "execute" segments, falling back to /:id.
func (s *Server) dispatchOrderDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, ordersPrefix)
	switch rest {
	case "":
		methodNotAllowed(w)
	case countSegment:
		s.methodHandlers(map[string]handlerFunc{http.MethodGet: s.countOrders}).ServeHTTP(w, r)
	case executeSegment:
		s.methodHandlers(map[string]handlerFunc{http.MethodGet: s.execute}).ServeHTTP(w, r)
	default:
		s.methodHandlers(map[string]handlerFunc{
			http.MethodGet:    s.getOrder,
			http.MethodDelete: s.deleteOrder,
		}).ServeHTTP(w, r)
	}
}

type createOrderRequest struct {
	TokenIn           string           `json:"tokenIn"`
	TokenOut          string           `json:"tokenOut"`
	Amount            decimal.Decimal  `json:"amount"`
	SlippageTolerance *decimal.Decimal `json:"slippageTolerance"`
	MaxRetries        *int             `json:"maxRetries"`
}

func (req createOrderRequest) toInput() order.CreateInput {
	return order.CreateInput{
		TokenIn:           req.TokenIn,
		TokenOut:          req.TokenOut,
		Amount:            req.Amount,
		SlippageTolerance: req.SlippageTolerance,
		MaxRetries:        req.MaxRetries,
	}.WithDefaults()
}

// createOrder implements POST /api/orders (spec §6): persists the
// order, enqueues its execution job, and rolls back the row if
// enqueueing fails, so no orphan order is ever left behind (spec §7).
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	limitRequestBody(w, r)
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDecodeError(w, err)
		return
	}

	input := req.toInput()
	if verr := order.ValidateCreate(input); verr != nil {
		writeError(w, verr)
		return
	}

	ctx := r.Context()
	created, err := s.store.Create(ctx, input)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, created.ID); err != nil {
			if delErr := s.store.Delete(ctx, created.ID); delErr != nil {
				observability.Log().Error("httpapi: rollback after enqueue failure failed",
					observability.Field{Key: "order_id", Value: created.ID.String()},
					observability.Field{Key: "error", Value: delErr.Error()},
				)
			}
			writeError(w, err)
			return
		}
	}

	s.publish(ctx, audit.EventOrderCreated, created.ID, map[string]any{
		"tokenIn": created.TokenIn, "tokenOut": created.TokenOut, "amount": created.Amount.String(),
	})

	writeData(w, http.StatusCreated, orderFromDomain(created), nil)
}

// listOrders implements GET /api/orders (spec §6).
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	query, err := queryFromRequest(r)
	if err != nil {
		writeError(w, errs.New("httpapi", errs.CodeValidation, errs.WithMessage(err.Error())))
		return
	}

	ctx := r.Context()
	orders, err := s.store.FindAll(ctx, query)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.store.Count(ctx, query)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderFromDomain(o))
	}
	writeData(w, http.StatusOK, views, map[string]any{"count": count})
}

// countOrders implements GET /api/orders/count (spec §6).
func (s *Server) countOrders(w http.ResponseWriter, r *http.Request) {
	var query order.Query
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := order.Status(raw)
		query.Status = &status
	}
	count, err := s.store.Count(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"count": count}, nil)
}

// getOrder implements GET /api/orders/:id (spec §6).
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := s.store.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, orderFromDomain(o), nil)
}

// deleteOrder implements DELETE /api/orders/:id (spec §6): transitions
// any non-terminal order to cancelled (spec §8 scenario 4, invariant
// 3), 409 if the order has already reached a terminal state. This is
// a status transition, not Delete — Delete remains a narrow internal
// hard-delete used only to roll back Create when Enqueue fails.
func (s *Server) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseOrderID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	if _, err := s.store.UpdateStatus(ctx, id, order.StatusCancelled); err != nil {
		writeError(w, err)
		return
	}
	s.publish(ctx, audit.EventOrderStatusChanged, id, map[string]any{"status": string(order.StatusCancelled)})
	if s.hub != nil {
		s.hub.PushOrderUpdate(id, "cancelled", nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// health implements GET /health, extended past the teacher's bare
// uptime response with Redis/Postgres reachability (spec §6 NEW).
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	}

	if s.pg != nil {
		if err := s.pg.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["postgres"] = "unreachable"
		} else {
			body["postgres"] = "ok"
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			body["status"] = "degraded"
			body["redis"] = "unreachable"
		} else {
			body["redis"] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) publish(ctx context.Context, eventType audit.EventType, orderID uuid.UUID, data map[string]any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, audit.Event{Type: eventType, OrderID: orderID, Data: data}); err != nil {
		observability.Log().Error("httpapi: audit publish failed",
			observability.Field{Key: "order_id", Value: orderID.String()},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	rest := strings.TrimPrefix(r.URL.Path, ordersPrefix)
	id, err := uuid.Parse(rest)
	if err != nil {
		return uuid.UUID{}, errs.New("httpapi", errs.CodeValidation, errs.WithMessage("invalid order id"))
	}
	return id, nil
}

func queryFromRequest(r *http.Request) (order.Query, error) {
	q := r.URL.Query()
	var query order.Query

	if raw := q.Get("status"); raw != "" {
		status := order.Status(raw)
		query.Status = &status
	}
	query.TokenIn = q.Get("tokenIn")
	query.TokenOut = q.Get("tokenOut")

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return order.Query{}, err
		}
		query.Limit = limit
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return order.Query{}, err
		}
		query.Offset = offset
	}
	return query, nil
}

// orderView is the wire representation of order.Order (spec §3/§6):
// field names match the HTTP contract's camelCase, independent of the
// domain struct's Go-idiomatic naming.
type orderView struct {
	ID                uuid.UUID       `json:"id"`
	TokenIn           string          `json:"tokenIn"`
	TokenOut          string          `json:"tokenOut"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	SlippageTolerance decimal.Decimal `json:"slippageTolerance"`
	MaxRetries        int             `json:"maxRetries"`
	RetryCount        int             `json:"retryCount"`
	SelectedVenue     string          `json:"selectedVenue,omitempty"`
	ExecutedPrice     decimal.Decimal `json:"executedPrice,omitempty"`
	TransactionHash   string          `json:"transactionHash,omitempty"`
	ErrorMessage      string          `json:"errorMessage,omitempty"`
	ConfirmedAt       *time.Time      `json:"confirmedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func orderFromDomain(o *order.Order) orderView {
	return orderView{
		ID:                o.ID,
		TokenIn:           o.TokenIn,
		TokenOut:          o.TokenOut,
		Amount:            o.Amount,
		Status:            string(o.Status),
		SlippageTolerance: o.SlippageTolerance,
		MaxRetries:        o.MaxRetries,
		RetryCount:        o.RetryCount,
		SelectedVenue:     o.SelectedVenue,
		ExecutedPrice:     o.ExecutedPrice,
		TransactionHash:   o.TransactionHash,
		ErrorMessage:      o.ErrorMessage,
		ConfirmedAt:       o.ConfirmedAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}
