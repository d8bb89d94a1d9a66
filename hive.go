// Package hive provides a high-level façade over the orchestration core:
// task routing, swarm coordination and the memory/learning substrate. Most
// applications interact with this package by:
//  1. Creating an Orchestrator via New() (optionally overriding the default
//     in-memory services and the gateway)
//  2. Submitting goals asynchronously (Submit) and observing them through
//     Status, Wait or Subscribe
//
// The façade drives Router → Swarm Coordinator → Learning Engine per goal
// while the shared memory store accumulates episodic traces, reflexions and
// promoted skills across goals. All defaults are safe for local development
// and testing; production deployments typically supply a real model gateway
// and a persistent memory store.
package hive

import (
	"context"
	"fmt"
	"sync"

	"github.com/hiveline/hive/config"
	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/embedding"
	"github.com/hiveline/hive/gateway"
	"github.com/hiveline/hive/learning"
	"github.com/hiveline/hive/logging"
	"github.com/hiveline/hive/memory"
	"github.com/hiveline/hive/router"
	"github.com/hiveline/hive/swarm"
)

// Options configures the Orchestrator instance.
type Options struct {
	// Config holds every tunable threshold. Defaults to config.Default().
	Config *config.Config
	// Gateway serves tool and model invocations for workers and the critic.
	// Defaults to an empty FunctionGateway, which fails every call as
	// unavailable until handlers are registered.
	Gateway core.Gateway
	// Memory is the shared cross-goal memory store. Defaults to an
	// in-memory implementation tuned from Config.
	Memory core.MemoryStore
	// Embedder produces the vectors stored alongside records. Defaults to
	// the deterministic feature-hash embedder.
	Embedder core.Embedder
	// Critic overrides the learning engine's critique source.
	Critic learning.Critic
	// Categories overrides the router's keyword table.
	Categories []router.Category
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
	// EventBufferSize sets the per-subscriber channel buffer. Events beyond
	// a full buffer are dropped rather than blocking goal execution.
	EventBufferSize int
}

// SubmitOptions carries per-goal overrides.
type SubmitOptions struct {
	// Strategy overrides the configured aggregation strategy for this goal.
	Strategy swarm.Strategy
	// RetryBudget overrides the per-task retry budget for this goal when
	// non-negative.
	RetryBudget int
	// Workers overrides pool sizes per specialization for this goal.
	Workers map[string]int
}

// Event is one goal status transition delivered to subscribers.
type Event struct {
	GoalID string          `json:"goal_id"`
	Status core.GoalStatus `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// GoalStatus is the snapshot returned by Status and Wait.
type GoalStatus struct {
	Goal core.Goal `json:"goal"`
	// Tasks reflects the arena's current task states, present once routing
	// succeeded. The slice holds copies; the session keeps the live records.
	Tasks []core.Task `json:"tasks,omitempty"`
	// Session holds the aggregated swarm result once the session finished;
	// for partial completions it carries the partial results rather than
	// hiding them.
	Session *swarm.SessionResult `json:"session,omitempty"`
	// FailureDetail explains a failed goal.
	FailureDetail string `json:"failure_detail,omitempty"`
}

type goalState struct {
	goal    core.Goal
	arena   *core.TaskArena
	session *swarm.SessionResult
	failure string
	done    chan struct{}
}

// Orchestrator is the top-level entry point composing router, swarm
// coordinator and learning engine around one shared memory store.
type Orchestrator struct {
	cfg      *config.Config
	gateway  core.Gateway
	memory   core.MemoryStore
	embedder core.Embedder
	router   *router.Router
	learner  *learning.Engine
	logger   logging.Logger

	baseStrategy swarm.Strategy
	eventBuffer  int

	mu     sync.RWMutex
	goals  map[string]*goalState
	subs   []chan Event
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an Orchestrator with optional overrides. Any unset service is
// initialized with an in-memory implementation tuned from the configuration.
func New(optFns ...func(o *Options)) (*Orchestrator, error) {
	opts := Options{
		Config:          config.Default(),
		Logger:          logging.NoOpLogger{},
		EventBufferSize: 16,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	strategy, err := swarm.ParseStrategy(opts.Config.Swarm.Strategy)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if opts.Gateway == nil {
		opts.Gateway = gateway.NewFunctionGateway(func(o *gateway.Options) {
			o.DefaultTimeout = opts.Config.Gateway.DefaultTimeout
			o.Logger = opts.Logger
		})
	}
	if opts.Embedder == nil {
		opts.Embedder = embedding.NewHashEmbedder(func(o *embedding.Options) {
			o.Dimension = opts.Config.Memory.EmbeddingDimension
		})
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore(func(o *memory.Options) {
			o.RecencyHalfLife = opts.Config.Memory.RecencyHalfLife
			o.PromotionThreshold = opts.Config.Learning.PromotionThreshold
			o.Logger = opts.Logger
		})
	}

	rt := router.New(opts.Memory, func(o *router.Options) {
		o.ConfidenceFloor = opts.Config.Router.ConfidenceFloor
		o.RetryBudget = opts.Config.Swarm.RetryBudget
		if opts.Categories != nil {
			o.Categories = opts.Categories
		}
		o.Logger = opts.Logger
	})
	learner := learning.New(opts.Memory, opts.Embedder, func(o *learning.Options) {
		if opts.Critic != nil {
			o.Critic = opts.Critic
		}
		o.Logger = opts.Logger
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:          opts.Config,
		gateway:      opts.Gateway,
		memory:       opts.Memory,
		embedder:     opts.Embedder,
		router:       rt,
		learner:      learner,
		logger:       opts.Logger,
		baseStrategy: strategy,
		eventBuffer:  opts.EventBufferSize,
		goals:        make(map[string]*goalState),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Submit accepts a goal for asynchronous execution and returns its id.
// Callers observe progress by polling Status, blocking in Wait, or consuming
// a Subscribe channel.
func (o *Orchestrator) Submit(text string, optFns ...func(s *SubmitOptions)) (string, error) {
	subOpts := SubmitOptions{
		Strategy:    o.baseStrategy,
		RetryBudget: -1,
	}
	for _, fn := range optFns {
		fn(&subOpts)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator is shut down")
	}
	goal := core.NewGoal(text)
	state := &goalState{goal: goal, done: make(chan struct{})}
	o.goals[goal.ID] = state
	o.wg.Add(1)
	o.mu.Unlock()

	o.logger.Info("goal submitted", "goal_id", goal.ID)
	go func() {
		defer o.wg.Done()
		o.run(state, subOpts)
	}()
	return goal.ID, nil
}

// run drives one goal through routing, the swarm session, and learning.
func (o *Orchestrator) run(state *goalState, subOpts SubmitOptions) {
	defer close(state.done)
	goalID := state.goal.ID
	o.setStatus(state, core.GoalRunning, "")

	tasks, err := o.router.Route(o.ctx, state.goal)
	if err != nil {
		// EmptyDecomposition is fatal to the goal: no swarm is dispatched.
		o.failGoal(state, err)
		return
	}
	arena := core.NewTaskArena()
	for _, task := range tasks {
		if subOpts.RetryBudget >= 0 {
			task.RetryBudget = subOpts.RetryBudget
		}
		arena.Add(task)
	}
	o.mu.Lock()
	state.arena = arena
	o.mu.Unlock()

	coordinator := swarm.New(o.gateway, func(sw *swarm.Options) {
		sw.Workers = o.cfg.Swarm.Workers
		if subOpts.Workers != nil {
			sw.Workers = subOpts.Workers
		}
		sw.DispatchWait = o.cfg.Swarm.DispatchWait
		sw.QueueWhenSaturated = o.cfg.Swarm.QueueWhenSaturated
		sw.Strategy = subOpts.Strategy
		sw.QuorumFraction = o.cfg.Swarm.QuorumFraction
		sw.RetryInitialInterval = o.cfg.Swarm.RetryInitialInterval
		sw.InvokeTimeout = o.cfg.Gateway.DefaultTimeout
		sw.Logger = o.logger
	})

	session, err := coordinator.Run(o.ctx, goalID, arena)
	o.mu.Lock()
	state.session = session
	o.mu.Unlock()

	o.learn(session, arena)

	switch {
	case o.ctx.Err() != nil:
		o.setStatus(state, core.GoalCancelled, o.ctx.Err().Error())
	case err != nil:
		o.failGoal(state, err)
	default:
		o.setStatus(state, core.GoalDone, string(session.State))
	}
}

// learn reflects every task that actually executed. Tasks cancelled before
// their first attempt leave no trace, so there is nothing to record for
// them.
func (o *Orchestrator) learn(session *swarm.SessionResult, arena *core.TaskArena) {
	if session == nil {
		return
	}
	for _, res := range session.Results {
		if res.Attempts == 0 {
			continue
		}
		task := arena.Get(res.TaskID)
		if task == nil {
			continue
		}
		outcome := core.OutcomeFailure
		trace := res.Payload
		if res.Status == core.TaskSucceeded {
			outcome = core.OutcomeSuccess
		} else if res.Err != nil {
			trace = res.Err.Error()
		}
		if _, err := o.learner.Reflect(o.ctx, task, session.SessionID, trace, outcome); err != nil {
			o.logger.Warn("reflexion failed", "task_id", res.TaskID, "error", err)
		}
	}
}

func (o *Orchestrator) failGoal(state *goalState, err error) {
	o.mu.Lock()
	state.failure = err.Error()
	o.mu.Unlock()
	o.setStatus(state, core.GoalFailed, err.Error())
}

// setStatus records a goal status transition and publishes it to
// subscribers.
func (o *Orchestrator) setStatus(state *goalState, status core.GoalStatus, detail string) {
	o.mu.Lock()
	state.goal.Status = status
	subs := make([]chan Event, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	o.logger.Debug("goal status changed", "goal_id", state.goal.ID, "status", status, "detail", detail)
	ev := Event{GoalID: state.goal.ID, Status: status, Detail: detail}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; dropping beats stalling the goal.
		}
	}
}

// Status returns a snapshot of the goal: its status, the partial results
// collected so far if any, and the failure detail if it failed.
func (o *Orchestrator) Status(goalID string) (GoalStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.goals[goalID]
	if !ok {
		return GoalStatus{}, fmt.Errorf("unknown goal %q", goalID)
	}
	snap := GoalStatus{Goal: state.goal, Session: state.session, FailureDetail: state.failure}
	if state.arena != nil {
		snap.Tasks = state.arena.Snapshot()
	}
	return snap, nil
}

// Wait blocks until the goal reaches a terminal status or ctx is done, then
// returns the final snapshot.
func (o *Orchestrator) Wait(ctx context.Context, goalID string) (GoalStatus, error) {
	o.mu.RLock()
	state, ok := o.goals[goalID]
	o.mu.RUnlock()
	if !ok {
		return GoalStatus{}, fmt.Errorf("unknown goal %q", goalID)
	}
	select {
	case <-state.done:
		return o.Status(goalID)
	case <-ctx.Done():
		return GoalStatus{}, ctx.Err()
	}
}

// Subscribe returns a channel receiving every goal status transition. The
// channel is closed on Shutdown. Subscribers that fall behind lose events
// instead of blocking execution.
func (o *Orchestrator) Subscribe() <-chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan Event, o.eventBuffer)
	o.subs = append(o.subs, ch)
	return ch
}

// Memory exposes the shared memory store, e.g. for consolidation jobs or
// snapshot import at boot.
func (o *Orchestrator) Memory() core.MemoryStore { return o.memory }

// Shutdown cancels all running goals cooperatively and waits for them to
// finish or for ctx to expire. Subscriber channels are closed on return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
	}

	o.mu.Lock()
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
	o.mu.Unlock()
	return err
}
