package swarm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/gateway"
	"github.com/hiveline/hive/internal/testutil"
)

func newTask(description, specialization string, budget int) *core.Task {
	return testutil.NewTaskBuilder(description, specialization).Goal("goal-1").Budget(budget).Build()
}

func newArena(tasks ...*core.Task) *core.TaskArena {
	arena := core.NewTaskArena()
	for _, t := range tasks {
		arena.Add(t)
	}
	return arena
}

// Every dispatched task must land in exactly one terminal bucket.
func assertConservation(t *testing.T, res *SessionResult, dispatched int) {
	t.Helper()
	assert.Equal(t, dispatched, res.Succeeded+res.Failed+res.Cancelled)
	require.Len(t, res.Results, dispatched)
	for _, r := range res.Results {
		assert.True(t, r.Status.Terminal(), "task %s status %s not terminal", r.TaskID, r.Status)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "all", want: StrategyAll},
		{in: "quorum", want: StrategyQuorum},
		{in: "first-success", want: StrategyFirstSuccess},
		{in: "majority", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRequiredSuccesses(t *testing.T) {
	assert.Equal(t, 3, StrategyAll.requiredSuccesses(3, 0))
	assert.Equal(t, 1, StrategyFirstSuccess.requiredSuccesses(3, 0))
	// An exact k/n fraction must require k, not k+1.
	assert.Equal(t, 2, StrategyQuorum.requiredSuccesses(3, 2.0/3.0))
	assert.Equal(t, 2, StrategyQuorum.requiredSuccesses(4, 0.5))
	assert.Equal(t, 1, StrategyQuorum.requiredSuccesses(3, 0.01))
}

func TestRunAllStrategyRetriesTimedOutTask(t *testing.T) {
	// 3 coder tasks on 2 workers; one gateway call times out once, then the
	// retry succeeds. The session must complete with 3 successes and exactly
	// one retry on record.
	mock := gateway.NewMockGateway()
	mock.TimeoutThenSucceed("coder", 1, "done")

	arena := newArena(
		newTask("write the parser", "coder", 2),
		newTask("write the lexer", "coder", 2),
		newTask("write the printer", "coder", 2),
	)
	c := New(mock, func(o *Options) {
		o.Workers = map[string]int{"coder": 2}
		o.Strategy = StrategyAll
		o.QueueWhenSaturated = true
		o.DispatchWait = 50 * time.Millisecond
		o.RetryInitialInterval = time.Millisecond
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.NoError(t, err)

	assert.Equal(t, SessionCompleted, res.State)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.RetriesUsed)
	assertConservation(t, res, 3)
	for _, task := range arena.All() {
		assert.Equal(t, core.TaskSucceeded, task.Status)
	}
	// 3 tasks plus one extra attempt for the timed-out one.
	assert.Equal(t, 4, mock.Calls("coder"))
}

func TestRunQuorumCancelsRemainingTasks(t *testing.T) {
	// Quorum 2-of-3: two tasks finish fast, the third blocks until it is
	// cancelled. The session completes as soon as the second success lands.
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("coder", func(ctx context.Context, args map[string]any) (string, error) {
		desc, _ := args["description"].(string)
		if strings.Contains(desc, "slow") {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok", nil
	})

	slow := newTask("slow exhaustive search", "coder", 0)
	arena := newArena(
		newTask("fast unit of work a", "coder", 0),
		newTask("fast unit of work b", "coder", 0),
		slow,
	)
	c := New(fg, func(o *Options) {
		o.Workers = map[string]int{"coder": 3}
		o.Strategy = StrategyQuorum
		o.QuorumFraction = 2.0 / 3.0
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.NoError(t, err)

	assert.Equal(t, SessionCompleted, res.State)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Cancelled)
	assert.Equal(t, 0, res.Failed)
	assertConservation(t, res, 3)

	for _, r := range res.Results {
		if r.TaskID != slow.ID {
			assert.Equal(t, core.TaskSucceeded, r.Status)
			continue
		}
		assert.True(t, r.Cancelled)
		assert.Equal(t, core.TaskFailed, r.Status)
		assert.ErrorIs(t, r.Err, core.ErrCancelled)
	}
}

func TestRunFirstSuccessTakesFirstAndCancelsSiblings(t *testing.T) {
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("solver", func(ctx context.Context, args map[string]any) (string, error) {
		desc, _ := args["description"].(string)
		if strings.Contains(desc, "branch a") {
			return "solved", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	})

	arena := newArena(
		newTask("attempt branch a", "solver", 0),
		newTask("attempt branch b", "solver", 0),
		newTask("attempt branch c", "solver", 0),
	)
	c := New(fg, func(o *Options) {
		o.Workers = map[string]int{"solver": 3}
		o.Strategy = StrategyFirstSuccess
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.NoError(t, err)

	assert.Equal(t, SessionCompleted, res.State)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 2, res.Cancelled)
	assertConservation(t, res, 3)
}

func TestRunRetryBudgetExhaustedAbortsSession(t *testing.T) {
	mock := gateway.NewMockGateway()
	for i := 0; i < 3; i++ {
		mock.FailWith("coder", core.ErrGatewayTimeout)
	}

	arena := newArena(newTask("flaky endpoint call", "coder", 2))
	c := New(mock, func(o *Options) {
		o.Workers = map[string]int{"coder": 1}
		o.Strategy = StrategyAll
		o.RetryInitialInterval = time.Millisecond
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.ErrorIs(t, err, core.ErrSessionAborted)

	assert.Equal(t, SessionAborted, res.State)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.RetriesUsed)
	assertConservation(t, res, 1)

	taskRes := res.Results[0]
	assert.Equal(t, 3, taskRes.Attempts)
	assert.ErrorIs(t, taskRes.Err, core.ErrWorkerFailure)
	assert.NotEmpty(t, res.FailureDetail)
}

func TestRunSaturatedPoolFailsWithoutQueueing(t *testing.T) {
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("coder", func(ctx context.Context, args map[string]any) (string, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	arena := newArena(
		newTask("long running job one", "coder", 0),
		newTask("long running job two", "coder", 0),
	)
	c := New(fg, func(o *Options) {
		o.Workers = map[string]int{"coder": 1}
		o.Strategy = StrategyAll
		o.DispatchWait = 20 * time.Millisecond
		o.QueueWhenSaturated = false
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.NoError(t, err)

	assert.Equal(t, SessionPartial, res.State)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assertConservation(t, res, 2)

	var dispatchErr error
	for _, r := range res.Results {
		if r.Err != nil {
			dispatchErr = r.Err
		}
	}
	require.ErrorIs(t, dispatchErr, core.ErrNoWorkerAvailable)
}

func TestRunReassignsRetryToIdlePeer(t *testing.T) {
	// The pool hands out idle workers FIFO, so after worker 0 fails the
	// retry lands on worker 1.
	mock := gateway.NewMockGateway()
	mock.TimeoutThenSucceed("coder", 1, "done")

	arena := newArena(newTask("one flaky task", "coder", 1))
	c := New(mock, func(o *Options) {
		o.Workers = map[string]int{"coder": 2}
		o.Strategy = StrategyAll
		o.RetryInitialInterval = time.Millisecond
	})

	res, err := c.Run(context.Background(), "goal-1", arena)
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	assert.Equal(t, "coder-1", res.Results[0].WorkerID)
	assert.Equal(t, 2, res.Results[0].Attempts)
}

func TestRunEmptyArena(t *testing.T) {
	c := New(gateway.NewMockGateway())
	res, err := c.Run(context.Background(), "goal-1", core.NewTaskArena())
	require.ErrorIs(t, err, core.ErrEmptyDecomposition)
	assert.Equal(t, SessionAborted, res.State)
}

func TestWorkerPoolAcquireUnknownSpecialization(t *testing.T) {
	p := newPool(map[string]int{"coder": 1})
	_, err := p.acquire(context.Background(), "plumber", 10*time.Millisecond, false)
	require.ErrorIs(t, err, core.ErrNoWorkerAvailable)
}

func TestWorkerStateTransitions(t *testing.T) {
	w := newWorker("coder", 0)
	assert.Equal(t, WorkerIdle, w.State())

	w.transition(WorkerAssigned, "t1")
	assert.Equal(t, WorkerAssigned, w.State())
	assert.Equal(t, "t1", w.CurrentTask())

	w.transition(WorkerRunning, "t1")
	w.transition(WorkerSucceeded, "t1")
	assert.Equal(t, WorkerSucceeded, w.State())
}
