package learning

import (
	"context"
	"fmt"
	"strings"

	"github.com/hiveline/hive/core"
)

// Critic produces a critique text for a completed task from its trace.
type Critic interface {
	Critique(ctx context.Context, task *core.Task, trace string, outcome core.Outcome) (string, error)
}

// traceExcerptLen bounds how much raw trace a heuristic critique embeds.
const traceExcerptLen = 160

// HeuristicCritic derives a critique from the trace without any model call.
// The output is a pure function of its inputs, which keeps reflexion
// sequences replayable.
type HeuristicCritic struct{}

var _ Critic = HeuristicCritic{}

// Critique implements Critic.
func (HeuristicCritic) Critique(_ context.Context, task *core.Task, trace string, outcome core.Outcome) (string, error) {
	excerpt := strings.TrimSpace(trace)
	if len(excerpt) > traceExcerptLen {
		excerpt = excerpt[:traceExcerptLen]
	}
	if outcome == core.OutcomeSuccess {
		if task.Warm() {
			return fmt.Sprintf("%s task succeeded following known procedure %q: %s", task.Specialization, task.Hint.SkillName, excerpt), nil
		}
		return fmt.Sprintf("%s task succeeded: %s", task.Specialization, excerpt), nil
	}
	return fmt.Sprintf("%s task failed, avoid repeating: %s", task.Specialization, excerpt), nil
}

// GatewayCritic asks a model capability through the gateway for a critique.
// Any gateway failure falls back to the heuristic critique so learning never
// blocks on a provider.
type GatewayCritic struct {
	Gateway core.Gateway
	// Name is the model capability to invoke. Defaults to "critic".
	Name     string
	fallback HeuristicCritic
}

var _ Critic = (*GatewayCritic)(nil)

// Critique implements Critic.
func (c *GatewayCritic) Critique(ctx context.Context, task *core.Task, trace string, outcome core.Outcome) (string, error) {
	name := c.Name
	if name == "" {
		name = "critic"
	}
	resp, err := c.Gateway.Invoke(ctx, core.GatewayRequest{
		Kind: core.KindModel,
		Name: name,
		Arguments: map[string]any{
			"description": task.Description,
			"trace":       trace,
			"outcome":     string(outcome),
		},
	})
	if err != nil || resp.Status != core.GatewayOK || strings.TrimSpace(resp.Payload) == "" {
		return c.fallback.Critique(ctx, task, trace, outcome)
	}
	return resp.Payload, nil
}
