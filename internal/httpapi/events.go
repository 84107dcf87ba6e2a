package httpapi

import (
	"sync"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
)

// EventRouter fans agentloop.Loop's single Config.OnEvent callback out to
// per-chat subscriber channels, so POST /chat/agent/stream can expose one
// SSE connection per in-flight chat even though the Loop itself knows
// nothing about HTTP. One EventRouter is built once at startup and shared
// between the agentloop.Config that builds the Loop and the Server that
// serves the stream.
type EventRouter struct {
	mu   sync.Mutex
	subs map[string][]chan agentloop.Event
}

// NewEventRouter builds an empty router.
func NewEventRouter() *EventRouter {
	return &EventRouter{subs: make(map[string][]chan agentloop.Event)}
}

// OnEvent is the agentloop.Config.OnEvent callback: it fans ev out to
// every subscriber currently registered for chatID, dropping it for a
// subscriber whose buffer is full rather than blocking the turn.
func (r *EventRouter) OnEvent(chatID string, ev agentloop.Event) {
	r.mu.Lock()
	subs := r.subs[chatID]
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Register opens a new subscription for chatID and returns its channel and
// an unregister func the caller must invoke when done listening.
func (r *EventRouter) Register(chatID string) (<-chan agentloop.Event, func()) {
	ch := make(chan agentloop.Event, 64)

	r.mu.Lock()
	r.subs[chatID] = append(r.subs[chatID], ch)
	r.mu.Unlock()

	unregister := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subs[chatID]
		for i, c := range subs {
			if c == ch {
				r.subs[chatID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(r.subs[chatID]) == 0 {
			delete(r.subs, chatID)
		}
		close(ch)
	}
	return ch, unregister
}
