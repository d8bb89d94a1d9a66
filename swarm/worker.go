package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hiveline/hive/core"
)

// WorkerState enumerates the per-worker lifecycle.
type WorkerState string

const (
	// WorkerIdle means the worker is in the pool awaiting a task.
	WorkerIdle WorkerState = "idle"
	// WorkerAssigned means a task is bound but execution has not started.
	WorkerAssigned WorkerState = "assigned"
	// WorkerRunning means the worker is executing a gateway call.
	WorkerRunning WorkerState = "running"
	// WorkerSucceeded means the last task completed successfully.
	WorkerSucceeded WorkerState = "succeeded"
	// WorkerFailed means the last task attempt failed on this worker.
	WorkerFailed WorkerState = "failed"
)

// Worker is a transient executor bound to one specialization. It lives for
// one swarm session and owns at most one task at any instant; ownership is
// enforced by the pool, which hands a worker to exactly one task attempt at
// a time.
type Worker struct {
	ID             string
	Specialization string

	mu          sync.Mutex
	state       WorkerState
	currentTask string
}

func newWorker(specialization string, idx int) *Worker {
	return &Worker{
		ID:             fmt.Sprintf("%s-%d", specialization, idx),
		Specialization: specialization,
		state:          WorkerIdle,
	}
}

// transition moves the worker to the given state for the given task.
func (w *Worker) transition(state WorkerState, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
	w.currentTask = taskID
}

// State returns the worker's current state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// CurrentTask returns the id of the task the worker currently owns, or ""
// when idle.
func (w *Worker) CurrentTask() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTask
}

// pool holds the idle workers of a session keyed by specialization. Idle
// workers sit in a buffered channel; acquiring receives one, releasing
// resets it to idle and sends it back. A failed worker returns to the pool
// the same way, so a retried task may land on the same worker or an idle
// peer with the matching specialization.
type pool struct {
	idle map[string]chan *Worker
}

func newPool(sizes map[string]int) *pool {
	p := &pool{idle: make(map[string]chan *Worker, len(sizes))}
	for specialization, n := range sizes {
		ch := make(chan *Worker, n)
		for i := 0; i < n; i++ {
			ch <- newWorker(specialization, i)
		}
		p.idle[specialization] = ch
	}
	return p
}

// acquire obtains an idle worker of the given specialization within the
// bounded wait. When the wait elapses and queue is false the dispatch fails
// with ErrNoWorkerAvailable; with queue true the caller keeps waiting until
// a worker frees up or the context is cancelled.
func (p *pool) acquire(ctx context.Context, specialization string, wait time.Duration, queue bool) (*Worker, error) {
	ch, ok := p.idle[specialization]
	if !ok {
		return nil, fmt.Errorf("specialization %q: %w", specialization, core.ErrNoWorkerAvailable)
	}

	select {
	case w := <-ch:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case w := <-ch:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		if !queue {
			return nil, fmt.Errorf("specialization %q: waited %s: %w", specialization, wait, core.ErrNoWorkerAvailable)
		}
	}

	select {
	case w := <-ch:
		return w, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release resets the worker to idle and returns it to the pool.
func (p *pool) release(w *Worker) {
	w.transition(WorkerIdle, "")
	p.idle[w.Specialization] <- w
}

// size returns the pool capacity for a specialization.
func (p *pool) size(specialization string) int {
	return cap(p.idle[specialization])
}
