package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
)

func TestEventRouter_RegisterAndDeliver(t *testing.T) {
	r := NewEventRouter()
	ch, unregister := r.Register("chat-1")
	defer unregister()

	r.OnEvent("chat-1", agentloop.Event{Type: "token"})

	select {
	case ev := <-ch:
		assert.Equal(t, agentloop.Event{Type: "token"}, ev)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestEventRouter_OnEventIgnoresUnsubscribedChat(t *testing.T) {
	r := NewEventRouter()
	// No subscriber registered for "chat-nobody" — OnEvent must not panic
	// or block.
	r.OnEvent("chat-nobody", agentloop.Event{Type: "token"})
}

func TestEventRouter_DropsOnFullBuffer(t *testing.T) {
	r := NewEventRouter()
	ch, unregister := r.Register("chat-1")
	defer unregister()

	// The subscriber channel buffers 64 events; flooding past that must
	// drop rather than block the emitting goroutine.
	for i := 0; i < 100; i++ {
		r.OnEvent("chat-1", agentloop.Event{Type: "token"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			assert.LessOrEqual(t, count, 64)
			return
		}
	}
}

func TestEventRouter_UnregisterClosesChannel(t *testing.T) {
	r := NewEventRouter()
	ch, unregister := r.Register("chat-1")
	unregister()

	_, open := <-ch
	assert.False(t, open)
}

func TestEventRouter_MultipleSubscribersEachGetEvent(t *testing.T) {
	r := NewEventRouter()
	ch1, unreg1 := r.Register("chat-1")
	defer unreg1()
	ch2, unreg2 := r.Register("chat-1")
	defer unreg2()

	r.OnEvent("chat-1", agentloop.Event{Type: "complete"})

	for _, ch := range []<-chan agentloop.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			require.Equal(t, "complete", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("expected event was not delivered to every subscriber")
		}
	}
}
