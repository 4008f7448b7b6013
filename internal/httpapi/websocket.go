package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/swaprouter/engine/internal/audit"
	"github.com/swaprouter/engine/internal/domain/order"
	"github.com/swaprouter/engine/internal/notify"
	"github.com/swaprouter/engine/internal/observability"
)

const (
	wsReadTimeout  = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 16
)

// wsMessage is the envelope for both inbound client actions and
// outbound server frames (spec §6's status/error/success frames).
type wsMessage struct {
	Action    string          `json:"action,omitempty"`
	Order     json.RawMessage `json:"order,omitempty"`
	Type      string          `json:"type,omitempty"`
	OrderID   *uuid.UUID      `json:"orderId,omitempty"`
	Status    string          `json:"status,omitempty"`
	Data      any             `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// wsSubscriber adapts a single WebSocket connection to notify.Subscriber,
// decoupling the hub's synchronous Push from the connection's actual
// write so a slow client can never stall order execution.
type wsSubscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{id: uuid.NewString(), conn: conn, send: make(chan []byte, wsSendBuffer)}
}

func (s *wsSubscriber) ID() string { return s.id }

func (s *wsSubscriber) Push(payload notify.Payload) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return s.enqueue(data)
}

func (s *wsSubscriber) writeFrame(msg wsMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return false
	}
	return s.enqueue(data)
}

func (s *wsSubscriber) enqueue(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// pump drains the send channel onto the wire until ctx is done or the
// channel is closed, so Push never blocks on network I/O.
func (s *wsSubscriber) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := s.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// execute implements the WebSocket endpoint at /api/orders/execute
// (spec §6): {action:"execute", order:{…}} creates an order and binds
// this socket as its subscriber; {action:"ping"} is answered with
// {type:"success", message:"pong"}. Socket close removes all
// subscriptions it holds.
func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	sub := newWSSubscriber(conn)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sub.pump(ctx)
	defer func() {
		if s.hub != nil {
			s.hub.RemoveAllBySubscriber(sub.id)
		}
	}()

	for {
		readCtx, readCancel := context.WithTimeout(ctx, wsReadTimeout)
		_, data, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sub.writeFrame(wsMessage{Type: "error", Message: "malformed message"})
			continue
		}

		switch msg.Action {
		case "ping":
			sub.writeFrame(wsMessage{Type: "success", Message: "pong"})
		case "execute":
			s.handleExecuteAction(ctx, sub, msg.Order)
		default:
			sub.writeFrame(wsMessage{Type: "error", Message: "unknown action"})
		}
	}
}

func (s *Server) handleExecuteAction(ctx context.Context, sub *wsSubscriber, raw json.RawMessage) {
	var req createOrderRequest
	if len(raw) == 0 {
		sub.writeFrame(wsMessage{Type: "error", Message: "order payload required"})
		return
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		sub.writeFrame(wsMessage{Type: "error", Message: "malformed order payload"})
		return
	}

	input := req.toInput()
	if verr := order.ValidateCreate(input); verr != nil {
		sub.writeFrame(wsMessage{Type: "error", Message: verr.Error()})
		return
	}

	created, err := s.store.Create(ctx, input)
	if err != nil {
		sub.writeFrame(wsMessage{Type: "error", Message: err.Error()})
		return
	}

	if s.queue != nil {
		if _, err := s.queue.Enqueue(ctx, created.ID); err != nil {
			if delErr := s.store.Delete(ctx, created.ID); delErr != nil {
				observability.Log().Error("httpapi: ws rollback after enqueue failure failed",
					observability.Field{Key: "order_id", Value: created.ID.String()},
					observability.Field{Key: "error", Value: delErr.Error()},
				)
			}
			sub.writeFrame(wsMessage{Type: "error", Message: err.Error()})
			return
		}
	}

	if s.hub != nil {
		s.hub.Register(created.ID, sub)
	}
	s.publish(ctx, audit.EventOrderCreated, created.ID, map[string]any{
		"tokenIn": created.TokenIn, "tokenOut": created.TokenOut, "amount": created.Amount.String(),
	})

	orderID := created.ID
	sub.writeFrame(wsMessage{Type: "success", Message: "order created", Data: orderFromDomain(created)})
	sub.writeFrame(wsMessage{Type: "status", OrderID: &orderID, Status: string(created.Status)})
}
