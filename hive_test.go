package hive

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveline/hive/config"
	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/gateway"
	"github.com/hiveline/hive/swarm"
)

// echoGateway registers model handlers for the specializations the default
// keyword table produces, so goals run end to end without a provider.
func echoGateway() *gateway.FunctionGateway {
	fg := gateway.NewFunctionGateway()
	for _, name := range []string{"architect", "coder", "tester", "reviewer", "auditor", "writer", "deployer"} {
		fg.RegisterModel(name, func(ctx context.Context, args map[string]any) (string, error) {
			desc, _ := args["description"].(string)
			return "completed: " + desc, nil
		})
	}
	return fg
}

func TestSubmitAndWaitCompletesGoal(t *testing.T) {
	o, err := New(func(opt *Options) {
		opt.Gateway = echoGateway()
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	id, err := o.Submit("build the parser and test it")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := o.Wait(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, core.GoalDone, snap.Goal.Status)
	require.NotNil(t, snap.Session)
	assert.Equal(t, swarm.SessionCompleted, snap.Session.State)
	require.Len(t, snap.Tasks, 2)
	for _, task := range snap.Tasks {
		assert.Equal(t, core.TaskSucceeded, task.Status)
	}
}

func TestStatusUnknownGoal(t *testing.T) {
	o, err := New()
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	_, err = o.Status("nope")
	require.Error(t, err)
}

func TestEmptyDecompositionFailsGoal(t *testing.T) {
	o, err := New(func(opt *Options) {
		opt.Gateway = echoGateway()
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	id, err := o.Submit("   ")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := o.Wait(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, core.GoalFailed, snap.Goal.Status)
	assert.Contains(t, snap.FailureDetail, "empty decomposition")
	assert.Nil(t, snap.Session)
}

func TestRerunRoutesThroughWarmPathAfterPromotion(t *testing.T) {
	cfg := config.Default()
	cfg.Learning.PromotionThreshold = 2

	o, err := New(func(opt *Options) {
		opt.Config = cfg
		opt.Gateway = echoGateway()
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// "build the widget" matches only the implement category, so each run is
	// exactly one coder task with a stable fingerprint.
	const goalText = "build the widget"
	for i := 0; i < 2; i++ {
		id, err := o.Submit(goalText)
		require.NoError(t, err)
		snap, err := o.Wait(ctx, id)
		require.NoError(t, err)
		require.Equal(t, core.GoalDone, snap.Goal.Status)
		// The first runs are cold: no skill exists yet.
		require.Len(t, snap.Tasks, 1)
		assert.False(t, snap.Tasks[0].Warm(), "run %d should be cold", i+1)
	}

	// Two consistent successes reached the threshold; the next run must be
	// skill-hinted.
	id, err := o.Submit(goalText)
	require.NoError(t, err)
	snap, err := o.Wait(ctx, id)
	require.NoError(t, err)

	require.Equal(t, core.GoalDone, snap.Goal.Status)
	require.Len(t, snap.Tasks, 1)
	task := snap.Tasks[0]
	require.True(t, task.Warm(), "expected warm path after promotion")
	assert.GreaterOrEqual(t, task.Hint.SuccessRate, cfg.Router.ConfidenceFloor)

	sk, ok, err := o.Memory().FindSkill(context.Background(), task.Fingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, task.Hint.SkillID, sk.ID)
	assert.Equal(t, 1, sk.UsageCount)
}

func TestStatusPollingDuringRunningSession(t *testing.T) {
	release := make(chan struct{})
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("coder", func(ctx context.Context, args map[string]any) (string, error) {
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	o, err := New(func(opt *Options) {
		opt.Gateway = fg
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	id, err := o.Submit("build the poller")
	require.NoError(t, err)

	// Poll while the worker holds the task, observing the in-flight states
	// through value snapshots rather than the session's live records.
	var inFlight []GoalStatus
	deadline := time.After(5 * time.Second)
	for len(inFlight) < 20 {
		select {
		case <-deadline:
			t.Fatal("goal never reached a pollable in-flight state")
		default:
		}
		snap, err := o.Status(id)
		require.NoError(t, err)
		if len(snap.Tasks) == 1 && !snap.Tasks[0].Status.Terminal() {
			inFlight = append(inFlight, snap)
		}
		time.Sleep(time.Millisecond)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := o.Wait(ctx, id)
	require.NoError(t, err)
	require.Equal(t, core.GoalDone, final.Goal.Status)
	require.Len(t, final.Tasks, 1)
	assert.Equal(t, core.TaskSucceeded, final.Tasks[0].Status)

	// Earlier snapshots are copies: the task's later transition to succeeded
	// must not rewrite them.
	for _, snap := range inFlight {
		assert.False(t, snap.Tasks[0].Status.Terminal())
	}
}

func TestSubscribeDeliversStatusTransitions(t *testing.T) {
	o, err := New(func(opt *Options) {
		opt.Gateway = echoGateway()
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	events := o.Subscribe()
	id, err := o.Submit("build the thing")
	require.NoError(t, err)

	var seen []core.GoalStatus
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.GoalID != id {
				continue
			}
			seen = append(seen, ev.Status)
			if ev.Status == core.GoalDone || ev.Status == core.GoalFailed {
				assert.Equal(t, []core.GoalStatus{core.GoalRunning, core.GoalDone}, seen)
				return
			}
		case <-deadline:
			t.Fatalf("no terminal event received, saw %v", seen)
		}
	}
}

func TestShutdownCancelsRunningGoals(t *testing.T) {
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("coder", func(ctx context.Context, args map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	o, err := New(func(opt *Options) {
		opt.Gateway = fg
	})
	require.NoError(t, err)

	id, err := o.Submit("build something endless")
	require.NoError(t, err)

	// Give the goal a moment to reach its gateway call.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Shutdown(ctx))

	snap, err := o.Status(id)
	require.NoError(t, err)
	assert.Equal(t, core.GoalCancelled, snap.Goal.Status)

	_, err = o.Submit("another goal")
	require.Error(t, err)
}

func TestSubmitWithPerGoalOverrides(t *testing.T) {
	fg := gateway.NewFunctionGateway()
	fg.RegisterModel("coder", func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	})

	o, err := New(func(opt *Options) {
		opt.Gateway = fg
	})
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	id, err := o.Submit("build the importer", func(s *SubmitOptions) {
		s.Strategy = swarm.StrategyFirstSuccess
		s.RetryBudget = 0
		s.Workers = map[string]int{"coder": 1}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := o.Wait(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, core.GoalDone, snap.Goal.Status)
	require.NotNil(t, snap.Session)
	assert.Equal(t, swarm.StrategyFirstSuccess, snap.Session.Strategy)
	require.Len(t, snap.Tasks, 1)
	assert.Zero(t, snap.Tasks[0].RetryBudget)
}
