package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/embedding"
	"github.com/hiveline/hive/logging"
)

// ChromemOptions configures a ChromemStore.
type ChromemOptions struct {
	// Path enables persistent storage; empty keeps the database in memory.
	Path string
	// Embedder backs chromem's embedding function for text-only inserts.
	Embedder core.Embedder
	// RecencyHalfLife, PromotionThreshold, Now and Logger mirror Options.
	RecencyHalfLife    time.Duration
	PromotionThreshold int
	Now                func() time.Time
	Logger             logging.Logger
}

// ChromemStore backs the episodic and reflexion retrieval layers with an
// embedded chromem vector database while delegating the skill layer and all
// promotion bookkeeping to an exact InMemoryStore. Candidate sets come from
// chromem's nearest-neighbor search and are re-ranked with the blended
// score, preserving the deterministic tie-break contract.
type ChromemStore struct {
	*InMemoryStore

	db         *chromem.DB
	episodicC  *chromem.Collection
	reflexionC *chromem.Collection
}

var _ core.MemoryStore = (*ChromemStore)(nil)

// NewChromemStore creates a ChromemStore, persistent when a path is given.
func NewChromemStore(optFns ...func(o *ChromemOptions)) (*ChromemStore, error) {
	opts := ChromemOptions{
		Embedder:           embedding.NewHashEmbedder(),
		RecencyHalfLife:    24 * time.Hour,
		PromotionThreshold: 5,
		Now:                time.Now,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var (
		db  *chromem.DB
		err error
	)
	if opts.Path != "" {
		db, err = chromem.NewPersistentDB(opts.Path, true)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return opts.Embedder.Embed(ctx, text)
	}
	episodicC, err := db.GetOrCreateCollection("episodic", nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("create episodic collection: %w", err)
	}
	reflexionC, err := db.GetOrCreateCollection("reflexion", nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("create reflexion collection: %w", err)
	}

	inner := NewInMemoryStore(func(o *Options) {
		o.RecencyHalfLife = opts.RecencyHalfLife
		o.PromotionThreshold = opts.PromotionThreshold
		o.Now = opts.Now
		o.Logger = opts.Logger
	})
	return &ChromemStore{InMemoryStore: inner, db: db, episodicC: episodicC, reflexionC: reflexionC}, nil
}

// AppendEpisodic writes through to the exact store and indexes the record in
// chromem.
func (s *ChromemStore) AppendEpisodic(ctx context.Context, rec core.EpisodicRecord) error {
	if err := s.InMemoryStore.AppendEpisodic(ctx, rec); err != nil {
		return err
	}
	return s.episodicC.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Embedding: rec.Embedding,
		Content:   rec.Trace,
		Metadata: map[string]string{
			"timestamp": rec.Timestamp.UTC().Format(time.RFC3339Nano),
			"task_id":   rec.TaskID,
		},
	})
}

// AppendReflexion writes through to the exact store and indexes the record
// in chromem.
func (s *ChromemStore) AppendReflexion(ctx context.Context, rec core.ReflexionRecord) error {
	if err := s.InMemoryStore.AppendReflexion(ctx, rec); err != nil {
		return err
	}
	return s.reflexionC.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Embedding: rec.Embedding,
		Content:   rec.Critique,
		Metadata: map[string]string{
			"timestamp":   rec.Timestamp.UTC().Format(time.RFC3339Nano),
			"fingerprint": string(rec.Fingerprint),
			"outcome":     string(rec.Outcome),
		},
	})
}

// Query uses chromem candidates for the episodic and reflexion layers and
// delegates the skill layer to the exact store.
func (s *ChromemStore) Query(ctx context.Context, embeddingVec []float32, layer core.Layer, k int) ([]core.QueryResult, error) {
	if layer == core.LayerSkill {
		return s.InMemoryStore.Query(ctx, embeddingVec, layer, k)
	}
	if k <= 0 {
		return nil, nil
	}

	col := s.episodicC
	if layer == core.LayerReflexion {
		col = s.reflexionC
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// Over-fetch so blended re-ranking can reorder beyond raw similarity.
	n := k * 4
	if n > count {
		n = count
	}
	candidates, err := col.QueryEmbedding(ctx, embeddingVec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	now := s.now()
	results := make([]core.QueryResult, 0, len(candidates))
	for _, cand := range candidates {
		ts, _ := time.Parse(time.RFC3339Nano, cand.Metadata["timestamp"])
		sim := (float64(cand.Similarity) + 1) / 2
		recency := s.recencyWeight(now, ts)
		results = append(results, core.QueryResult{
			Record: core.Record{
				ID:          cand.ID,
				Layer:       layer,
				Fingerprint: core.Fingerprint(cand.Metadata["fingerprint"]),
				Embedding:   cand.Embedding,
				Payload:     cand.Content,
				Timestamp:   ts,
			},
			Similarity: sim,
			Recency:    recency,
			Blended:    sim * recency,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Blended != b.Blended {
			return a.Blended > b.Blended
		}
		if !a.Record.Timestamp.Equal(b.Record.Timestamp) {
			return a.Record.Timestamp.After(b.Record.Timestamp)
		}
		return a.Record.ID < b.Record.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
