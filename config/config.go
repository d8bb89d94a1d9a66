// Package config provides configuration loading for hive. All tunable
// thresholds of the orchestration core (promotion count, confidence floor,
// retry budgets, quorum fraction, dispatch wait) live here so no component
// bakes a magic constant into its logic.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for a hive process.
type Config struct {
	Logging  LoggingConfig  `koanf:"logging"`
	Memory   MemoryConfig   `koanf:"memory"`
	Router   RouterConfig   `koanf:"router"`
	Swarm    SwarmConfig    `koanf:"swarm"`
	Learning LearningConfig `koanf:"learning"`
	Gateway  GatewayConfig  `koanf:"gateway"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or text
}

// MemoryConfig tunes the memory store's retrieval scoring.
type MemoryConfig struct {
	// EmbeddingDimension is the vector size the embedder must produce.
	EmbeddingDimension int `koanf:"embedding_dimension"`
	// RecencyHalfLife drives the exponential recency weight: a record this
	// old scores 0.5 on the recency axis.
	RecencyHalfLife time.Duration `koanf:"recency_half_life"`
	// QueryK is the default number of neighbors returned by Query.
	QueryK int `koanf:"query_k"`
	// ConsolidationSimilarity is the minimum procedure similarity for two
	// skills of one class to be judged duplicates and merged.
	ConsolidationSimilarity float64 `koanf:"consolidation_similarity"`
}

// RouterConfig tunes decomposition and skill matching.
type RouterConfig struct {
	// ConfidenceFloor is the minimum skill success rate for the warm path.
	ConfidenceFloor float64 `koanf:"confidence_floor"`
}

// SwarmConfig tunes worker pools and dispatch behavior.
type SwarmConfig struct {
	// Workers maps specialization tag to pool size for a session.
	Workers map[string]int `koanf:"workers"`
	// RetryBudget is the per-task retry allowance for gateway failures.
	RetryBudget int `koanf:"retry_budget"`
	// RetryInitialInterval seeds the exponential backoff between retries.
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	// DispatchWait bounds how long dispatch waits for an idle worker of the
	// required specialization before applying the saturation policy.
	DispatchWait time.Duration `koanf:"dispatch_wait"`
	// QueueWhenSaturated queues tasks past DispatchWait instead of failing
	// them with NoWorkerAvailable.
	QueueWhenSaturated bool `koanf:"queue_when_saturated"`
	// Strategy selects the default aggregation strategy: all, quorum or
	// first-success.
	Strategy string `koanf:"strategy"`
	// QuorumFraction is the success fraction required by the quorum
	// strategy.
	QuorumFraction float64 `koanf:"quorum_fraction"`
}

// LearningConfig tunes reflexion and promotion.
type LearningConfig struct {
	// PromotionThreshold is the minimum count of consistent successful
	// reflexions for one fingerprint class before a skill is created.
	PromotionThreshold int `koanf:"promotion_threshold"`
}

// GatewayConfig tunes gateway invocation defaults.
type GatewayConfig struct {
	// DefaultTimeout bounds invocations whose request carries no timeout.
	DefaultTimeout time.Duration `koanf:"default_timeout"`
}

// Default returns the baseline configuration. Values are safe for local
// development and tests.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Memory: MemoryConfig{
			EmbeddingDimension:      128,
			RecencyHalfLife:         24 * time.Hour,
			QueryK:                  5,
			ConsolidationSimilarity: 0.9,
		},
		Router: RouterConfig{ConfidenceFloor: 0.7},
		Swarm: SwarmConfig{
			Workers:              map[string]int{"generalist": 2},
			RetryBudget:          2,
			RetryInitialInterval: 50 * time.Millisecond,
			DispatchWait:         5 * time.Second,
			QueueWhenSaturated:   true,
			Strategy:             "all",
			QuorumFraction:       0.5,
		},
		Learning: LearningConfig{PromotionThreshold: 5},
		Gateway:  GatewayConfig{DefaultTimeout: 30 * time.Second},
	}
}

// Validate checks cross-field consistency. It is called by the loader after
// defaults are applied.
func (c *Config) Validate() error {
	if c.Memory.EmbeddingDimension <= 0 {
		return fmt.Errorf("memory.embedding_dimension must be positive, got %d", c.Memory.EmbeddingDimension)
	}
	if c.Memory.RecencyHalfLife <= 0 {
		return fmt.Errorf("memory.recency_half_life must be positive, got %s", c.Memory.RecencyHalfLife)
	}
	if c.Memory.ConsolidationSimilarity < 0 || c.Memory.ConsolidationSimilarity > 1 {
		return fmt.Errorf("memory.consolidation_similarity must be in [0,1], got %f", c.Memory.ConsolidationSimilarity)
	}
	if c.Router.ConfidenceFloor < 0 || c.Router.ConfidenceFloor > 1 {
		return fmt.Errorf("router.confidence_floor must be in [0,1], got %f", c.Router.ConfidenceFloor)
	}
	if c.Swarm.RetryBudget < 0 {
		return fmt.Errorf("swarm.retry_budget must be non-negative, got %d", c.Swarm.RetryBudget)
	}
	switch c.Swarm.Strategy {
	case "all", "quorum", "first-success":
	default:
		return fmt.Errorf("swarm.strategy must be all, quorum or first-success, got %q", c.Swarm.Strategy)
	}
	if c.Swarm.QuorumFraction <= 0 || c.Swarm.QuorumFraction > 1 {
		return fmt.Errorf("swarm.quorum_fraction must be in (0,1], got %f", c.Swarm.QuorumFraction)
	}
	if c.Learning.PromotionThreshold < 1 {
		return fmt.Errorf("learning.promotion_threshold must be at least 1, got %d", c.Learning.PromotionThreshold)
	}
	if c.Gateway.DefaultTimeout <= 0 {
		return fmt.Errorf("gateway.default_timeout must be positive, got %s", c.Gateway.DefaultTimeout)
	}
	return nil
}
