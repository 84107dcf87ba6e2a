package taskbus

import "sync"

// eventBufferSize bounds both the replay buffer and each subscriber's
// live channel (spec.md §4.F "bounded buffer, e.g., 256 events").
const eventBufferSize = 256

// ringBuffer holds the last eventBufferSize events published for one Task
// and fans them out to live subscribers, dropping the oldest buffered or
// queued event on overflow rather than blocking the publisher.
type ringBuffer struct {
	mu      sync.Mutex
	buf     []Event
	nextSeq int64
	dropped bool

	subs      map[int]chan Event
	nextSubID int
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{
		buf:  make([]Event, 0, size),
		subs: make(map[int]chan Event),
	}
}

func (r *ringBuffer) publish(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.Seq = r.nextSeq
	r.nextSeq++

	if len(r.buf) >= cap(r.buf) {
		r.buf = r.buf[1:]
		r.dropped = true
	}
	r.buf = append(r.buf, ev)

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Drop the oldest queued event for this subscriber, then
			// enqueue the new one — drop-oldest, never block the publisher.
			// The new event is flagged Lag so the subscriber can tell its
			// view of the stream has a gap instead of missing it silently.
			select {
			case <-ch:
			default:
			}
			lagged := ev
			lagged.Lag = true
			select {
			case ch <- lagged:
			default:
			}
		}
	}
}

// subscribe returns every event currently buffered plus a live channel for
// new ones. If the buffer has ever dropped an event for being full, the
// oldest replayed event is flagged Lag: a new subscriber replaying it
// knows the task's earlier history has a gap it never saw.
func (r *ringBuffer) subscribe() (buffered []Event, live <-chan Event, unsubscribe func()) {
	r.mu.Lock()
	buffered = append([]Event(nil), r.buf...)
	if r.dropped && len(buffered) > 0 {
		buffered[0].Lag = true
	}
	id := r.nextSubID
	r.nextSubID++
	ch := make(chan Event, eventBufferSize)
	r.subs[id] = ch
	r.mu.Unlock()

	unsubscribe = func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
		close(ch)
	}
	return buffered, ch, unsubscribe
}
