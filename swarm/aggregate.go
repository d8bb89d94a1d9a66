package swarm

import (
	"fmt"
	"math"
)

// Strategy selects how a session turns task results into a session outcome.
// The set is closed; ParseStrategy rejects anything else.
type Strategy string

const (
	// StrategyAll waits for every task to terminate and unions results.
	StrategyAll Strategy = "all"
	// StrategyQuorum succeeds once a configured fraction of tasks succeed,
	// cancelling the rest.
	StrategyQuorum Strategy = "quorum"
	// StrategyFirstSuccess races redundant tasks and takes the first
	// success, cancelling siblings.
	StrategyFirstSuccess Strategy = "first-success"
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyAll, StrategyQuorum, StrategyFirstSuccess:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown aggregation strategy %q", s)
	}
}

// quorumEpsilon absorbs float error so a fraction of exactly k/n requires k
// successes, not k+1.
const quorumEpsilon = 1e-9

// requiredSuccesses returns how many task successes the strategy needs for
// the session to complete.
func (s Strategy) requiredSuccesses(n int, quorumFraction float64) int {
	switch s {
	case StrategyFirstSuccess:
		return 1
	case StrategyQuorum:
		need := int(math.Ceil(quorumFraction*float64(n) - quorumEpsilon))
		if need < 1 {
			need = 1
		}
		if need > n {
			need = n
		}
		return need
	default:
		return n
	}
}

// finalState maps the collected outcome counts to the session's terminal
// state: completed when the strategy's requirement is met, partial when some
// work succeeded but not enough, aborted when nothing did.
func (s Strategy) finalState(n, succeeded int, quorumFraction float64) SessionState {
	switch {
	case succeeded >= s.requiredSuccesses(n, quorumFraction):
		return SessionCompleted
	case succeeded > 0:
		return SessionPartial
	default:
		return SessionAborted
	}
}
