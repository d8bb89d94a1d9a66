package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/logging"
)

// Options configures an Engine.
type Options struct {
	// Critic produces critique text; defaults to HeuristicCritic.
	Critic Critic
	// Now supplies record timestamps, overridable for deterministic tests.
	Now func() time.Time
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine is the learning engine. After every completed task it appends the
// episodic trace, derives and appends a reflexion record, and evaluates
// skill promotion for the task's fingerprint class.
type Engine struct {
	memory   core.MemoryStore
	embedder core.Embedder
	critic   Critic
	now      func() time.Time
	logger   logging.Logger
}

// New creates an Engine over the given memory store and embedder.
func New(memory core.MemoryStore, embedder core.Embedder, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Critic: HeuristicCritic{},
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		memory:   memory,
		embedder: embedder,
		critic:   opts.Critic,
		now:      opts.Now,
		logger:   opts.Logger,
	}
}

// Reflect records the outcome of one completed task. The episodic trace is
// written unconditionally, success or failure; the reflexion record links
// back to it; promotion runs last so the decision sees the new reflexion.
// Given the same sequence of tasks, traces, and outcomes, the produced
// record contents and the resulting skill state are identical across runs.
func (e *Engine) Reflect(ctx context.Context, task *core.Task, sessionID, trace string, outcome core.Outcome) (core.ReflexionRecord, error) {
	traceVec, err := e.embedder.Embed(ctx, trace)
	if err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("embed trace for task %s: %w", task.ID, err)
	}
	episodic := core.EpisodicRecord{
		ID:        core.NewID(),
		SessionID: sessionID,
		TaskID:    task.ID,
		Timestamp: e.now().UTC(),
		Embedding: traceVec,
		Trace:     trace,
	}
	if err := e.memory.AppendEpisodic(ctx, episodic); err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("append episodic for task %s: %w", task.ID, err)
	}

	critique, err := e.critic.Critique(ctx, task, trace, outcome)
	if err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("critique task %s: %w", task.ID, err)
	}
	critiqueVec, err := e.embedder.Embed(ctx, critique)
	if err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("embed critique for task %s: %w", task.ID, err)
	}
	reflexion := core.ReflexionRecord{
		ID:          core.NewID(),
		Fingerprint: task.Fingerprint,
		Outcome:     outcome,
		Critique:    critique,
		Embedding:   critiqueVec,
		EpisodicID:  episodic.ID,
		Timestamp:   e.now().UTC(),
	}
	if err := e.memory.AppendReflexion(ctx, reflexion); err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("append reflexion for task %s: %w", task.ID, err)
	}

	skill, promoted, err := e.memory.Promote(ctx, task.Fingerprint)
	if err != nil {
		return core.ReflexionRecord{}, fmt.Errorf("promote class %s: %w", task.Fingerprint, err)
	}
	if promoted {
		e.logger.Info("skill promoted",
			"class", task.Fingerprint,
			"skill_id", skill.ID,
			"skill", skill.Name,
			"success_rate", skill.SuccessRate,
			"provenance", len(skill.Provenance),
		)
	} else {
		e.logger.Debug("promotion evaluated", "class", task.Fingerprint, "promoted", false)
	}
	return reflexion, nil
}
