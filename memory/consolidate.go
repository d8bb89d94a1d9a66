package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/embedding"
	"github.com/hiveline/hive/logging"
)

// SimilarityPolicy judges whether two procedure templates are equivalent for
// consolidation purposes. The metric is pluggable; EmbeddingPolicy is the
// default.
type SimilarityPolicy interface {
	Equivalent(ctx context.Context, a, b string) (bool, error)
}

// EmbeddingPolicy judges equivalence by cosine similarity of the procedure
// embeddings against a configurable threshold.
type EmbeddingPolicy struct {
	Embedder  core.Embedder
	Threshold float64
}

// Equivalent implements SimilarityPolicy.
func (p EmbeddingPolicy) Equivalent(ctx context.Context, a, b string) (bool, error) {
	va, err := p.Embedder.Embed(ctx, a)
	if err != nil {
		return false, fmt.Errorf("embed procedure: %w", err)
	}
	vb, err := p.Embedder.Embed(ctx, b)
	if err != nil {
		return false, fmt.Errorf("embed procedure: %w", err)
	}
	return embedding.Cosine(va, vb) >= p.Threshold, nil
}

// ConsolidatorOptions configures a StoreConsolidator.
type ConsolidatorOptions struct {
	Policy SimilarityPolicy
	Now    func() time.Time
	Logger logging.Logger
}

// StoreConsolidator merges near-duplicate skills of one fingerprint class in
// an InMemoryStore into the head skill: provenance is summed in order, the
// success rate recomputed, and only the head record rewritten. Provenance
// history is never deleted. Trigger cadence is the caller's policy; run it
// periodically or after promotion bursts.
type StoreConsolidator struct {
	store  *InMemoryStore
	policy SimilarityPolicy
	now    func() time.Time
	logger logging.Logger
}

var _ core.Consolidator = (*StoreConsolidator)(nil)

// NewConsolidator creates a consolidator over the given store.
func NewConsolidator(store *InMemoryStore, optFns ...func(o *ConsolidatorOptions)) *StoreConsolidator {
	opts := ConsolidatorOptions{
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Policy == nil {
		opts.Policy = EmbeddingPolicy{Embedder: embedding.NewHashEmbedder(), Threshold: 0.9}
	}
	return &StoreConsolidator{store: store, policy: opts.Policy, now: opts.Now, logger: opts.Logger}
}

// Consolidate implements core.Consolidator for one fingerprint class.
func (c *StoreConsolidator) Consolidate(ctx context.Context, class core.Fingerprint) (int, error) {
	mu := c.store.lockClass(class)
	defer mu.Unlock()

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	list := c.store.skills[class]
	if len(list) < 2 {
		return 0, nil
	}

	head := list[0]
	kept := []*core.Skill{head}
	merged := 0
	for _, sk := range list[1:] {
		eq, err := c.policy.Equivalent(ctx, head.Procedure, sk.Procedure)
		if err != nil {
			return merged, err
		}
		if !eq {
			kept = append(kept, sk)
			continue
		}
		head.Provenance = append(head.Provenance, sk.Provenance...)
		head.UsageCount += sk.UsageCount
		delete(c.store.skillByID, sk.ID)
		merged++
	}
	if merged > 0 {
		if rate := c.store.recomputeRateLocked(head.Provenance); rate > 0 {
			head.SuccessRate = rate
		}
		head.UpdatedAt = c.now().UTC()
		c.logger.Info("skills consolidated", "class", string(class), "merged", merged, "provenance", len(head.Provenance))
	}
	c.store.skills[class] = kept
	return merged, nil
}
