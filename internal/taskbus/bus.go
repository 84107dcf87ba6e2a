package taskbus

import (
	"context"
	"sync"

	"github.com/tesslate/studio-orchestrator/internal/logger"
	"github.com/tesslate/studio-orchestrator/internal/orcherr"
)

const defaultQueueCapacity = 1000

type job struct {
	task *Task
	fn   Func
	ctx  context.Context
}

// Bus runs submitted Tasks on a bounded worker pool, the same pattern the
// teacher uses to dispatch agent commands: a buffered queue plus a fixed
// number of worker goroutines, so a burst of submissions queues rather
// than spawning unbounded goroutines.
type Bus struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	queue   chan job
	workers int
	stop    chan struct{}
}

// New builds a Bus with the given worker count (0 defaults to 10, matching
// the teacher dispatcher's default).
func New(workers int) *Bus {
	if workers <= 0 {
		workers = 10
	}
	b := &Bus{
		tasks:   make(map[string]*Task),
		queue:   make(chan job, defaultQueueCapacity),
		workers: workers,
		stop:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	log := logger.TaskBus()
	for {
		select {
		case j := <-b.queue:
			b.run(j)
		case <-b.stop:
			for {
				select {
				case j := <-b.queue:
					b.run(j)
				default:
					log.Debug().Msg("taskbus worker stopped")
					return
				}
			}
		}
	}
}

// Submit enqueues fn as a new Task and returns immediately with its id
// (spec.md §4.F "Submit returns {task_id, status_endpoint} immediately").
// parentCtx governs the task's lifetime beyond the caller's own request
// context (e.g. an HTTP handler's context, which ends before the task
// does); pass context.Background() if the task should outlive the
// request entirely.
func (b *Bus) Submit(parentCtx context.Context, kind string, fn Func) *Task {
	t := newTask(kind)
	taskCtx, cancel := context.WithCancel(parentCtx)
	t.cancelFunc = cancel

	b.mu.Lock()
	b.tasks[t.ID] = t
	b.mu.Unlock()

	select {
	case b.queue <- job{task: t, fn: fn, ctx: taskCtx}:
	default:
		// Queue saturated: still return a task handle so polling clients
		// get a consistent status rather than a submission error, per
		// spec.md's "strictly monotone" transitions — it just starts
		// further back in queued.
		go func() { b.queue <- job{task: t, fn: fn, ctx: taskCtx} }()
	}
	return t
}

func (b *Bus) run(j job) {
	log := logger.TaskBus()
	j.task.setStatus(StatusRunning)

	result, err := j.fn(j.ctx, j.task)

	if j.ctx.Err() != nil {
		j.task.finish(StatusCancelled, nil, "")
		return
	}
	if err != nil {
		oe := orcherr.Wrap(err)
		log.Error().Str("task_id", j.task.ID).Str("kind", j.task.Kind).Err(oe).Msg("task failed")
		j.task.finish(StatusFailed, nil, oe.Error())
		return
	}
	j.task.finish(StatusCompleted, result, "")
}

// Get returns a Task by id.
func (b *Bus) Get(taskID string) (*Task, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tasks[taskID]
	return t, ok
}

// Cancel requests cancellation of a running or queued Task.
func (b *Bus) Cancel(taskID string) error {
	t, ok := b.Get(taskID)
	if !ok {
		return orcherr.UserError(orcherr.CodeNotFound, "task not found: "+taskID)
	}
	t.Cancel()
	return nil
}

// Close stops the worker pool. Already-queued jobs continue to drain before
// the workers exit; a job submitted after the queue has been drained is
// never run. In-flight ones are not interrupted by Close itself (callers
// wanting that should Cancel each task first).
func (b *Bus) Close() {
	close(b.stop)
}
