package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tesslate/studio-orchestrator/internal/models"
)

func TestApprovalRegistry_ResolveDeliversToWaiter(t *testing.T) {
	r := NewApprovalRegistry()
	waiter := r.Waiter()

	resultCh := make(chan models.ApprovalResolution, 1)
	go func() {
		resultCh <- waiter(context.Background(), models.ApprovalTicket{ID: "t-1"}, time.Minute)
	}()

	// Give the waiter goroutine time to register the ticket before
	// resolving it.
	time.Sleep(10 * time.Millisecond)
	assert.True(t, r.Resolve("t-1", models.ApprovalAllowOnce))

	select {
	case got := <-resultCh:
		assert.Equal(t, models.ApprovalAllowOnce, got)
	case <-time.After(time.Second):
		t.Fatal("waiter never returned")
	}
}

func TestApprovalRegistry_ResolveUnknownTicketReturnsFalse(t *testing.T) {
	r := NewApprovalRegistry()
	assert.False(t, r.Resolve("no-such-ticket", models.ApprovalStop))
}

func TestApprovalRegistry_WaiterTimesOut(t *testing.T) {
	r := NewApprovalRegistry()
	waiter := r.Waiter()

	got := waiter(context.Background(), models.ApprovalTicket{ID: "t-2"}, 10*time.Millisecond)
	assert.Equal(t, models.ApprovalStop, got)
}

func TestApprovalRegistry_WaiterRespectsContextCancellation(t *testing.T) {
	r := NewApprovalRegistry()
	waiter := r.Waiter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := waiter(ctx, models.ApprovalTicket{ID: "t-3"}, time.Minute)
	assert.Equal(t, models.ApprovalStop, got)
}
