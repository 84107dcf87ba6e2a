package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/tesslate/studio-orchestrator/internal/agentloop"
	"github.com/tesslate/studio-orchestrator/internal/models"
)

// ApprovalRegistry bridges agentloop.Loop's blocking ApprovalWaiter onto
// the control plane's request/response HTTP surface: Waiter registers a
// ticket and blocks the turn goroutine until POST /chat/agent/approval
// calls Resolve, or the turn's ApprovalWait budget elapses. Callers build
// one ApprovalRegistry and pass the same instance's Waiter to
// agentloop.Config.Approve and the instance itself to httpapi.New, so both
// sides see the same pending tickets.
type ApprovalRegistry struct {
	mu      sync.Mutex
	pending map[string]chan models.ApprovalResolution
}

// NewApprovalRegistry builds an empty registry.
func NewApprovalRegistry() *ApprovalRegistry {
	return &ApprovalRegistry{pending: make(map[string]chan models.ApprovalResolution)}
}

// Waiter returns the agentloop.ApprovalWaiter this registry backs.
func (r *ApprovalRegistry) Waiter() agentloop.ApprovalWaiter {
	return r.wait
}

func (r *ApprovalRegistry) wait(ctx context.Context, ticket models.ApprovalTicket, timeout time.Duration) models.ApprovalResolution {
	ch := make(chan models.ApprovalResolution, 1)

	r.mu.Lock()
	r.pending[ticket.ID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, ticket.ID)
		r.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resolution := <-ch:
		return resolution
	case <-timer.C:
		return models.ApprovalStop
	case <-ctx.Done():
		return models.ApprovalStop
	}
}

// Resolve delivers resolution to the ticket's waiting turn, if one is still
// pending. It reports whether a pending ticket matched.
func (r *ApprovalRegistry) Resolve(ticketID string, resolution models.ApprovalResolution) bool {
	r.mu.Lock()
	ch, ok := r.pending[ticketID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- resolution:
	default:
	}
	return true
}
