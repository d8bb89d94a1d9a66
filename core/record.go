package core

import "time"

// Layer identifies one of the three logical memory layers.
type Layer string

const (
	// LayerEpisodic holds raw execution traces, one per completed task.
	LayerEpisodic Layer = "episodic"
	// LayerReflexion holds post-hoc critiques of completed tasks.
	LayerReflexion Layer = "reflexion"
	// LayerSkill holds consolidated reusable procedures.
	LayerSkill Layer = "skill"
)

// Outcome classifies a completed task for learning purposes.
type Outcome string

const (
	// OutcomeSuccess marks a task that reached TaskSucceeded.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure marks a task that reached TaskFailed.
	OutcomeFailure Outcome = "failure"
)

// EpisodicRecord captures the raw trace of one task execution. Records are
// append-only and immutable once written; corrections are new records.
type EpisodicRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Embedding []float32 `json:"embedding"`
	Trace     string    `json:"trace"`
}

// ReflexionRecord is a structured critique of a completed task, produced by
// the learning engine. Immutable once written.
type ReflexionRecord struct {
	ID          string      `json:"id"`
	Fingerprint Fingerprint `json:"fingerprint"`
	Outcome     Outcome     `json:"outcome"`
	Critique    string      `json:"critique"`
	Embedding   []float32   `json:"embedding"`
	EpisodicID  string      `json:"episodic_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Skill is a reusable procedure consolidated from repeated successful
// reflexions of the same fingerprint class. Skills mutate only through
// promotion and consolidation, never through individual task writes.
type Skill struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Class        Fingerprint `json:"class"`
	Precondition string      `json:"precondition,omitempty"`
	Procedure    string      `json:"procedure"`
	UsageCount   int         `json:"usage_count"`
	SuccessRate  float64     `json:"success_rate"`
	// Provenance is the ordered sequence of reflexion record ids this skill
	// was derived from. Consolidation appends, never removes.
	Provenance []string  `json:"provenance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Record is the layer-agnostic persistence shape every memory entry reduces
// to: {id, layer, fingerprint (empty for episodic), embedding, payload,
// timestamp, provenance (skills only)}.
type Record struct {
	ID          string      `json:"id"`
	Layer       Layer       `json:"layer"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Embedding   []float32   `json:"embedding"`
	Payload     string      `json:"payload"`
	Timestamp   time.Time   `json:"timestamp"`
	Provenance  []string    `json:"provenance,omitempty"`
}

// QueryResult pairs a retrieved record with its component and blended scores.
type QueryResult struct {
	Record     Record  `json:"record"`
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	// Blended is similarity × recency × (success-rate for skill records).
	Blended float64 `json:"blended"`
}
