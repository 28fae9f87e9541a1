// Package realtime fans out change notifications to in-process subscribers.
package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultBuffer = 16

const (
	EventDecisionCreated  = "decision.created"
	EventDecisionUpdated  = "decision.updated"
	EventPathsAnalyzed    = "decision.paths_analyzed"
	EventOutcomeRecorded  = "decision.outcome_recorded"
	EventWorkflowUpdated  = "workflow.updated"
	EventSubscriptionOpen = "ready"
)

type Event struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	At      string `json:"at"`
	Payload any    `json:"payload,omitempty"`
}

func DecisionTopic(decisionID string) string { return "decision:" + decisionID }

func WorkflowTopic(decisionID string) string { return "workflow:" + decisionID }

// Hub delivers each published event to the current subscribers of its topic.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
	logger *zap.Logger
	now    func() time.Time
}

type Subscription struct {
	C     <-chan Event
	ch    chan Event
	topic string
	hub   *Hub
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
		now:    time.Now,
	}
}

func (h *Hub) Subscribe(topic string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, topic: topic, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	return sub
}

// Close detaches the subscription and closes its channel. It is safe to call
// more than once.
func (s *Subscription) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.topic]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.topic)
	}
	close(s.ch)
}

// Publish stamps ev with topic and time and returns how many subscribers
// received it.
func (h *Hub) Publish(topic string, ev Event) int {
	ev.Topic = topic
	if ev.At == "" {
		ev.At = h.now().UTC().Format(time.RFC3339)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for sub := range h.subs[topic] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.logger.Debug("dropping event for slow subscriber", zap.String("topic", topic), zap.String("type", ev.Type))
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Close ends every subscription. Later subscriptions start closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, topic)
	}
}
