package testutil

import (
	"time"

	"github.com/hiveline/hive/core"
)

// ReflexionBuilder helps construct reflexion records with fluent chaining
// for tests.
// Example:
//
//	rx := NewReflexionBuilder("rx-1", class).Failure().At(ts).Build()
type ReflexionBuilder struct {
	id          string
	fingerprint core.Fingerprint
	outcome     core.Outcome
	critique    string
	embedding   []float32
	episodicID  string
	timestamp   time.Time
}

// NewReflexionBuilder creates a new builder for a successful reflexion of
// the given fingerprint class. Use chainable methods then call Build.
func NewReflexionBuilder(id string, class core.Fingerprint) *ReflexionBuilder {
	return &ReflexionBuilder{
		id:          id,
		fingerprint: class,
		outcome:     core.OutcomeSuccess,
		critique:    "task completed as expected",
		timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Failure marks the reflexion as a failure (chainable).
func (b *ReflexionBuilder) Failure() *ReflexionBuilder {
	b.outcome = core.OutcomeFailure
	return b
}

// Critique sets the critique text (chainable).
func (b *ReflexionBuilder) Critique(text string) *ReflexionBuilder {
	b.critique = text
	return b
}

// Embedding sets the embedding vector (chainable).
func (b *ReflexionBuilder) Embedding(vec []float32) *ReflexionBuilder {
	b.embedding = vec
	return b
}

// Episodic links the reflexion to an episodic record id (chainable).
func (b *ReflexionBuilder) Episodic(id string) *ReflexionBuilder {
	b.episodicID = id
	return b
}

// At sets the record timestamp (chainable).
func (b *ReflexionBuilder) At(ts time.Time) *ReflexionBuilder {
	b.timestamp = ts
	return b
}

// Build returns the assembled core.ReflexionRecord.
func (b *ReflexionBuilder) Build() core.ReflexionRecord {
	return core.ReflexionRecord{
		ID:          b.id,
		Fingerprint: b.fingerprint,
		Outcome:     b.outcome,
		Critique:    b.critique,
		Embedding:   b.embedding,
		EpisodicID:  b.episodicID,
		Timestamp:   b.timestamp,
	}
}
