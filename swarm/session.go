package swarm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/internal/util"
	"github.com/hiveline/hive/logging"
)

// SessionState enumerates the swarm session lifecycle.
type SessionState string

const (
	// SessionForming means worker pools are being built.
	SessionForming SessionState = "forming"
	// SessionDispatching means tasks are being handed to workers.
	SessionDispatching SessionState = "dispatching"
	// SessionCollecting means the session is awaiting task results.
	SessionCollecting SessionState = "collecting"
	// SessionAggregating means all results arrived and the outcome is being
	// computed.
	SessionAggregating SessionState = "aggregating"
	// SessionCompleted means the aggregation strategy's requirement was met.
	SessionCompleted SessionState = "completed"
	// SessionPartial means some tasks succeeded but not enough for the
	// strategy; partial results are reported, not hidden.
	SessionPartial SessionState = "partial"
	// SessionAborted means no task succeeded.
	SessionAborted SessionState = "aborted"
)

// Terminal reports whether the session state is terminal.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionPartial || s == SessionAborted
}

// TaskResult is the terminal outcome of one dispatched task. The coordinator
// only emits a result after the task reached a terminal status, so
// aggregation never observes in-flight work.
type TaskResult struct {
	TaskID      string           `json:"task_id"`
	Fingerprint core.Fingerprint `json:"fingerprint"`
	Description string           `json:"description"`
	WorkerID    string           `json:"worker_id,omitempty"`
	Status      core.TaskStatus  `json:"status"`
	Payload     string           `json:"payload,omitempty"`
	Attempts    int              `json:"attempts"`
	Cancelled   bool             `json:"cancelled"`
	Err         error            `json:"-"`
}

// Retries returns how many attempts beyond the first the task consumed.
func (r TaskResult) Retries() int {
	if r.Attempts > 1 {
		return r.Attempts - 1
	}
	return 0
}

// SessionResult summarizes one swarm session run.
type SessionResult struct {
	SessionID string       `json:"session_id"`
	GoalID    string       `json:"goal_id"`
	Strategy  Strategy     `json:"strategy"`
	State     SessionState `json:"state"`
	// Results holds one entry per dispatched task, in dispatch order.
	Results       []TaskResult  `json:"results"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Cancelled     int           `json:"cancelled"`
	RetriesUsed   int           `json:"retries_used"`
	Duration      time.Duration `json:"duration"`
	FailureDetail string        `json:"failure_detail,omitempty"`
}

// Options configures a Coordinator.
type Options struct {
	// Workers sizes the pool per specialization; missing entries fall back
	// to DefaultPoolSize.
	Workers map[string]int
	// DefaultPoolSize is the pool size for specializations absent from
	// Workers.
	DefaultPoolSize int
	// DispatchWait bounds how long a task waits for an idle worker.
	DispatchWait time.Duration
	// QueueWhenSaturated keeps a task queued past DispatchWait instead of
	// failing it with ErrNoWorkerAvailable.
	QueueWhenSaturated bool
	// Strategy is the session aggregation strategy.
	Strategy Strategy
	// QuorumFraction is the success fraction required by StrategyQuorum.
	QuorumFraction float64
	// RetryInitialInterval seeds the exponential backoff between attempts.
	RetryInitialInterval time.Duration
	// InvokeTimeout is passed on every gateway request; zero lets the
	// gateway apply its default.
	InvokeTimeout time.Duration
	// RequestFor builds the gateway request for a task. The default sends a
	// model request named after the specialization, with the description and
	// any skill-hint procedure as arguments.
	RequestFor func(t *core.Task) core.GatewayRequest
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Coordinator runs swarm sessions against a gateway. Workers never share a
// task: each attempt exclusively owns one worker from acquire to release,
// and the result channel is the only path from workers back to the session.
type Coordinator struct {
	gateway core.Gateway
	opts    Options
}

// New creates a Coordinator with the given gateway and options.
func New(gw core.Gateway, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		DefaultPoolSize:      2,
		DispatchWait:         2 * time.Second,
		Strategy:             StrategyAll,
		QuorumFraction:       0.5,
		RetryInitialInterval: 50 * time.Millisecond,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{gateway: gw, opts: opts}
}

// Run executes every task in the arena as one swarm session and blocks until
// the session reaches a terminal state. Cancellation of ctx propagates
// cooperatively: running workers abandon their gateway call and report
// cancelled rather than being forcibly stopped. The returned error is
// non-nil only when the session aborted or the input was empty; partial
// completion is reported through the result, not as an error.
func (c *Coordinator) Run(ctx context.Context, goalID string, arena *core.TaskArena) (*SessionResult, error) {
	tasks := arena.All()
	result := &SessionResult{
		SessionID: core.NewID(),
		GoalID:    goalID,
		Strategy:  c.opts.Strategy,
		State:     SessionForming,
	}
	if len(tasks) == 0 {
		result.State = SessionAborted
		result.FailureDetail = "no tasks to dispatch"
		return result, fmt.Errorf("session %s: %w", result.SessionID, core.ErrEmptyDecomposition)
	}

	log := c.opts.Logger
	start := time.Now()
	n := len(tasks)
	required := c.opts.Strategy.requiredSuccesses(n, c.opts.QuorumFraction)

	p := newPool(c.poolSizes(tasks))
	log.Debug("session forming", "session_id", result.SessionID, "goal_id", goalID, "tasks", n, "strategy", c.opts.Strategy, "required", required)

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result.State = SessionDispatching
	resultCh := make(chan TaskResult, n)
	for _, task := range tasks {
		go func(t *core.Task) {
			resultCh <- c.runTask(sessCtx, p, t, arena, log)
		}(task)
	}

	result.State = SessionCollecting
	byTask := make(map[string]TaskResult, n)
	succeeded := 0
	for i := 0; i < n; i++ {
		res := <-resultCh
		byTask[res.TaskID] = res
		if res.Status == core.TaskSucceeded {
			succeeded++
			// Quorum met or first success taken: cancel the siblings but
			// keep collecting so every dispatched task reaches a terminal
			// state before aggregation.
			if succeeded >= required {
				cancel()
			}
		}
	}

	result.State = SessionAggregating
	for _, task := range tasks {
		res := byTask[task.ID]
		result.Results = append(result.Results, res)
		result.RetriesUsed += res.Retries()
		switch {
		case res.Status == core.TaskSucceeded:
		case res.Cancelled:
			result.Cancelled++
		default:
			result.Failed++
			if res.Err != nil {
				if result.FailureDetail != "" {
					result.FailureDetail += "; "
				}
				result.FailureDetail += res.Err.Error()
			}
		}
	}
	result.Succeeded = succeeded
	result.State = c.opts.Strategy.finalState(n, succeeded, c.opts.QuorumFraction)
	result.Duration = time.Since(start)

	log.Info("session finished",
		"session_id", result.SessionID,
		"goal_id", goalID,
		"state", result.State,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
		"retries", result.RetriesUsed,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if result.State == SessionAborted {
		return result, fmt.Errorf("session %s: %s: %w", result.SessionID, result.FailureDetail, core.ErrSessionAborted)
	}
	return result, nil
}

// poolSizes derives the worker pool sizes for the specializations the tasks
// actually need.
func (c *Coordinator) poolSizes(tasks []*core.Task) map[string]int {
	sizes := make(map[string]int)
	for _, t := range tasks {
		if _, ok := sizes[t.Specialization]; ok {
			continue
		}
		if n, ok := c.opts.Workers[t.Specialization]; ok && n > 0 {
			sizes[t.Specialization] = n
		} else {
			sizes[t.Specialization] = c.opts.DefaultPoolSize
		}
	}
	return sizes
}

// runTask drives one task to a terminal state: per attempt it acquires an
// idle worker of the matching specialization, walks the worker through
// assigned → running, and issues exactly one gateway call. Retryable gateway
// failures are retried with exponential backoff up to the task's retry
// budget; each retry re-acquires from the pool, so it may land on an idle
// peer instead of the worker that failed.
func (c *Coordinator) runTask(ctx context.Context, p *pool, task *core.Task, arena *core.TaskArena, log logging.Logger) TaskResult {
	res := TaskResult{TaskID: task.ID, Fingerprint: task.Fingerprint, Description: task.Description}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.RetryInitialInterval

	operation := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}
		w, err := p.acquire(ctx, task.Specialization, c.opts.DispatchWait, c.opts.QueueWhenSaturated)
		if err != nil {
			return "", backoff.Permanent(err)
		}

		res.Attempts++
		res.WorkerID = w.ID
		w.transition(WorkerAssigned, task.ID)
		arena.SetStatus(task.ID, core.TaskAssigned)
		w.transition(WorkerRunning, task.ID)
		arena.SetStatus(task.ID, core.TaskRunning)

		resp, err := c.gateway.Invoke(ctx, c.requestFor(task))
		if err != nil {
			w.transition(WorkerFailed, task.ID)
			p.release(w)
			log.Warn("task attempt failed", "task_id", task.ID, "worker_id", res.WorkerID, "attempt", res.Attempts, "error", err)
			if core.Retryable(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}

		w.transition(WorkerSucceeded, task.ID)
		p.release(w)
		return resp.Payload, nil
	}

	payload, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(task.RetryBudget)+1),
	)
	if err == nil {
		res.Status = core.TaskSucceeded
		res.Payload = payload
		arena.SetStatus(task.ID, core.TaskSucceeded)
		return res
	}

	res.Status = core.TaskFailed
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, core.ErrCancelled):
		res.Cancelled = true
		res.Err = fmt.Errorf("task %s: %w", task.ID, core.ErrCancelled)
	case core.Retryable(err):
		// The last attempt was retryable but the budget is spent.
		res.Err = fmt.Errorf("task %s: retry budget %d exhausted: %w: %w", task.ID, task.RetryBudget, core.ErrWorkerFailure, err)
	default:
		res.Err = fmt.Errorf("task %s: %w", task.ID, err)
	}
	arena.SetStatus(task.ID, core.TaskFailed)
	return res
}

// requestFor builds the gateway request for a task.
func (c *Coordinator) requestFor(task *core.Task) core.GatewayRequest {
	if c.opts.RequestFor != nil {
		req := c.opts.RequestFor(task)
		if req.Timeout == 0 {
			req.Timeout = c.opts.InvokeTimeout
		}
		return req
	}
	prompt := task.Description
	args := map[string]any{"description": task.Description}
	if task.Hint != nil {
		procedure := task.Hint.Procedure
		if rendered, err := util.RenderProcedure(procedure, map[string]any{
			"Description":    task.Description,
			"Specialization": task.Specialization,
		}); err == nil {
			procedure = rendered
		}
		args["procedure"] = procedure
		prompt = fmt.Sprintf("%s\n\nKnown good procedure:\n%s", task.Description, procedure)
	}
	args["prompt"] = prompt
	return core.GatewayRequest{
		Kind:      core.KindModel,
		Name:      task.Specialization,
		Arguments: args,
		Timeout:   c.opts.InvokeTimeout,
	}
}
