package core

import "context"

// MemoryStore defines persistence and retrieval for the three-layer learning
// substrate. It is the only cross-session shared mutable resource in the
// framework: an explicit service passed by reference, initialized once per
// process and torn down on shutdown.
//
// Implementations must:
//   - Treat episodic and reflexion records as append-only and immutable
//   - Serialize writes per fingerprint class (single-writer per class) so
//     concurrent completions of equivalent tasks cannot race to create
//     duplicate skills
//   - Guarantee deterministic result ordering for equal blended scores
//     (most recent timestamp first, then record id)
type MemoryStore interface {
	// AppendEpisodic writes a raw trace record. Called unconditionally at
	// task completion, success or failure.
	AppendEpisodic(ctx context.Context, rec EpisodicRecord) error

	// AppendReflexion writes a critique record after the learning engine's
	// reflect step.
	AppendReflexion(ctx context.Context, rec ReflexionRecord) error

	// GetEpisodic retrieves an episodic record by id with a byte-identical
	// payload round-trip.
	GetEpisodic(ctx context.Context, id string) (EpisodicRecord, error)

	// Query returns the k nearest records in the given layer ordered by
	// blended score = similarity × recency × (for skills) success-rate.
	Query(ctx context.Context, embedding []float32, layer Layer, k int) ([]QueryResult, error)

	// FindSkill returns the promoted skill for a fingerprint class, if any.
	FindSkill(ctx context.Context, class Fingerprint) (*Skill, bool, error)

	// Promote evaluates whether the accumulated reflexions for the class
	// justify creating or updating a skill. Returns the skill and true when
	// a promotion happened; promotion is deterministic and idempotent over
	// the same record sequence.
	Promote(ctx context.Context, class Fingerprint) (*Skill, bool, error)

	// RecordSkillUse increments a skill's usage count. Called by the router
	// when it annotates a task with the skill's procedure.
	RecordSkillUse(ctx context.Context, skillID string) error
}

// Consolidator merges near-duplicate skills for one fingerprint class into a
// single head record, summing provenance and recomputing success rate.
// Cadence and the equivalence metric are policy, supplied by the caller.
type Consolidator interface {
	Consolidate(ctx context.Context, class Fingerprint) (merged int, err error)
}

// Embedder converts text into a fixed-dimension embedding vector used for
// similarity retrieval. The concrete model is pluggable; the framework only
// requires determinism for identical input within one store lifetime.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}
