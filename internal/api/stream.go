package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/internal/auth"
	"github.com/davidahmann/neuroflow/internal/realtime"
)

const (
	subscriptionBuffer = 32
	writeTimeout       = 5 * time.Second
)

// Subscriber hands out topic subscriptions for the websocket feeds.
type Subscriber interface {
	Subscribe(topic string, buffer int) *realtime.Subscription
}

func (h *Handler) SubscribeDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.stream(w, r, id, realtime.DecisionTopic(id))
}

func (h *Handler) SubscribeWorkflow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.stream(w, r, id, realtime.WorkflowTopic(id))
}

// stream forwards events for topic over a websocket until the client goes
// away. Ownership of the decision is checked before the upgrade.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, decisionID, topic string) {
	if h.Hub == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stream unavailable"})
		return
	}
	if _, err := h.Decisions.Get(claimsFrom(r).Subject, decisionID); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{auth.WebSocketProtocol},
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	sub := h.Hub.Subscribe(topic, subscriptionBuffer)
	defer sub.Close()

	_ = wsjson.Write(ctx, conn, realtime.Event{
		Type:  realtime.EventSubscriptionOpen,
		Topic: topic,
		At:    h.now().UTC().Format(time.RFC3339),
	})
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancelWrite()
			if err != nil {
				h.logger().Debug("stream write failed", zap.String("topic", topic), zap.Error(err))
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
