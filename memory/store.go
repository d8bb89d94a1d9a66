package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/embedding"
	"github.com/hiveline/hive/logging"
)

// Options configures an InMemoryStore.
type Options struct {
	// RecencyHalfLife drives the exponential recency weight in Query.
	RecencyHalfLife time.Duration
	// PromotionThreshold is the minimum count of consistent successful
	// reflexions before a new skill is created for a class.
	PromotionThreshold int
	// Now supplies the clock, overridable for deterministic tests.
	Now func() time.Time
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
}

// InMemoryStore is the process-local MemoryStore. Episodic and reflexion
// layers are append-only; skills are derived state mutated only by Promote
// and consolidation. Writes for one fingerprint class are serialized through
// a per-class mutex so concurrent completions of equivalent tasks cannot
// race to create duplicate skills; a detected contention is logged as a
// write conflict and retried by blocking, never surfaced to the caller.
type InMemoryStore struct {
	mu             sync.RWMutex
	episodic       map[string]core.EpisodicRecord
	episodicOrder  []string
	reflexions     map[string]core.ReflexionRecord
	reflexionOrder []string
	// classSeq is the append-ordered reflexion id sequence per class; the
	// promotion decision is a pure function of this sequence.
	classSeq map[core.Fingerprint][]string
	// promotedThrough marks how much of classSeq each past promotion has
	// consumed.
	promotedThrough map[core.Fingerprint]int
	skills          map[core.Fingerprint][]*core.Skill
	skillByID       map[string]*core.Skill

	classMu      map[core.Fingerprint]*sync.Mutex
	classMuGuard sync.Mutex

	halfLife  time.Duration
	threshold int
	now       func() time.Time
	logger    logging.Logger
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store with optional overrides.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		RecencyHalfLife:    24 * time.Hour,
		PromotionThreshold: 5,
		Now:                time.Now,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{
		episodic:        make(map[string]core.EpisodicRecord),
		reflexions:      make(map[string]core.ReflexionRecord),
		classSeq:        make(map[core.Fingerprint][]string),
		promotedThrough: make(map[core.Fingerprint]int),
		skills:          make(map[core.Fingerprint][]*core.Skill),
		skillByID:       make(map[string]*core.Skill),
		classMu:         make(map[core.Fingerprint]*sync.Mutex),
		halfLife:        opts.RecencyHalfLife,
		threshold:       opts.PromotionThreshold,
		now:             opts.Now,
		logger:          opts.Logger,
	}
}

// classLock returns the single-writer mutex for a fingerprint class,
// creating it lazily.
func (s *InMemoryStore) classLock(class core.Fingerprint) *sync.Mutex {
	s.classMuGuard.Lock()
	defer s.classMuGuard.Unlock()
	mu, ok := s.classMu[class]
	if !ok {
		mu = &sync.Mutex{}
		s.classMu[class] = mu
	}
	return mu
}

// lockClass acquires the class writer lock. Contention is the
// MemoryWriteConflict case: logged, then resolved by waiting, never fatal to
// the triggering task.
func (s *InMemoryStore) lockClass(class core.Fingerprint) *sync.Mutex {
	mu := s.classLock(class)
	if !mu.TryLock() {
		s.logger.Debug("memory write conflict, waiting for class writer", "class", string(class), "error", core.ErrMemoryWriteConflict)
		mu.Lock()
	}
	return mu
}

// AppendEpisodic implements core.MemoryStore. Duplicate ids are rejected:
// records are immutable once written and corrections must be new records.
func (s *InMemoryStore) AppendEpisodic(_ context.Context, rec core.EpisodicRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("episodic record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.episodic[rec.ID]; exists {
		return fmt.Errorf("episodic record %s already written: records are immutable", rec.ID)
	}
	rec.Embedding = cloneVec(rec.Embedding)
	s.episodic[rec.ID] = rec
	s.episodicOrder = append(s.episodicOrder, rec.ID)
	return nil
}

// AppendReflexion implements core.MemoryStore. The write is serialized with
// all other writes for the record's fingerprint class.
func (s *InMemoryStore) AppendReflexion(_ context.Context, rec core.ReflexionRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("reflexion record requires an id")
	}
	if rec.Fingerprint == "" {
		return fmt.Errorf("reflexion record requires a fingerprint")
	}
	mu := s.lockClass(rec.Fingerprint)
	defer mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.reflexions[rec.ID]; exists {
		return fmt.Errorf("reflexion record %s already written: records are immutable", rec.ID)
	}
	rec.Embedding = cloneVec(rec.Embedding)
	s.reflexions[rec.ID] = rec
	s.reflexionOrder = append(s.reflexionOrder, rec.ID)
	s.classSeq[rec.Fingerprint] = append(s.classSeq[rec.Fingerprint], rec.ID)
	return nil
}

// GetEpisodic implements core.MemoryStore with a byte-identical payload
// round-trip.
func (s *InMemoryStore) GetEpisodic(_ context.Context, id string) (core.EpisodicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.episodic[id]
	if !ok {
		return core.EpisodicRecord{}, fmt.Errorf("episodic record %s not found", id)
	}
	rec.Embedding = cloneVec(rec.Embedding)
	return rec, nil
}

// Query implements core.MemoryStore. Results are ordered by blended score =
// similarity × recency × (for skills) success-rate; ties break by most
// recent timestamp, then record id, so retrieval is reproducible.
func (s *InMemoryStore) Query(_ context.Context, embeddingVec []float32, layer core.Layer, k int) ([]core.QueryResult, error) {
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	records := s.layerRecordsLocked(layer)
	s.mu.RUnlock()

	now := s.now()
	results := make([]core.QueryResult, 0, len(records))
	for _, rec := range records {
		sim := similarity(embeddingVec, rec.record.Embedding)
		recency := s.recencyWeight(now, rec.record.Timestamp)
		blended := sim * recency * rec.rate
		results = append(results, core.QueryResult{
			Record:     rec.record,
			Similarity: sim,
			Recency:    recency,
			Blended:    blended,
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

type scoredRecord struct {
	record core.Record
	rate   float64 // success-rate weight, 1.0 for non-skill layers
}

func (s *InMemoryStore) layerRecordsLocked(layer core.Layer) []scoredRecord {
	var out []scoredRecord
	switch layer {
	case core.LayerEpisodic:
		for _, id := range s.episodicOrder {
			r := s.episodic[id]
			out = append(out, scoredRecord{rate: 1, record: core.Record{
				ID: r.ID, Layer: layer, Embedding: r.Embedding, Payload: r.Trace, Timestamp: r.Timestamp,
			}})
		}
	case core.LayerReflexion:
		for _, id := range s.reflexionOrder {
			r := s.reflexions[id]
			out = append(out, scoredRecord{rate: 1, record: core.Record{
				ID: r.ID, Layer: layer, Fingerprint: r.Fingerprint, Embedding: r.Embedding, Payload: r.Critique, Timestamp: r.Timestamp,
			}})
		}
	case core.LayerSkill:
		classes := make([]string, 0, len(s.skills))
		for class := range s.skills {
			classes = append(classes, string(class))
		}
		sort.Strings(classes)
		for _, class := range classes {
			for _, sk := range s.skills[core.Fingerprint(class)] {
				out = append(out, scoredRecord{rate: sk.SuccessRate, record: core.Record{
					ID: sk.ID, Layer: layer, Fingerprint: sk.Class, Embedding: s.procedureEmbeddingLocked(sk), Payload: sk.Procedure, Timestamp: sk.UpdatedAt, Provenance: append([]string(nil), sk.Provenance...),
				}})
			}
		}
	}
	return out
}

// procedureEmbeddingLocked reuses the embedding of the most recent provenance
// reflexion as the skill's retrieval vector.
func (s *InMemoryStore) procedureEmbeddingLocked(sk *core.Skill) []float32 {
	for i := len(sk.Provenance) - 1; i >= 0; i-- {
		if r, ok := s.reflexions[sk.Provenance[i]]; ok && len(r.Embedding) > 0 {
			return r.Embedding
		}
	}
	return nil
}

func (s *InMemoryStore) recencyWeight(now, ts time.Time) float64 {
	age := now.Sub(ts)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(s.halfLife))
}

// similarity maps cosine similarity from [-1,1] into [0,1] so the blended
// product stays monotone.
func similarity(a, b []float32) float64 {
	return (embedding.Cosine(a, b) + 1) / 2
}

// FindSkill implements core.MemoryStore, returning a copy of the head skill
// for the class.
func (s *InMemoryStore) FindSkill(_ context.Context, class core.Fingerprint) (*core.Skill, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.skills[class]
	if len(list) == 0 {
		return nil, false, nil
	}
	cp := cloneSkill(list[0])
	return cp, true, nil
}

// RecordSkillUse implements core.MemoryStore.
func (s *InMemoryStore) RecordSkillUse(_ context.Context, skillID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.skillByID[skillID]
	if !ok {
		return fmt.Errorf("skill %s not found", skillID)
	}
	sk.UsageCount++
	return nil
}

// Promote implements core.MemoryStore.
//
// The decision is a pure function of the class's reflexion sequence: count
// the successes appended since the last promotion; a new skill is created
// only when that count reaches the threshold without a conflicting failure
// majority in the same window, while an existing skill absorbs every new
// window into its provenance with the success rate recomputed from scratch.
// Running Promote again with no new reflexions is a no-op, which makes the
// whole procedure idempotent over a fixed record sequence.
func (s *InMemoryStore) Promote(_ context.Context, class core.Fingerprint) (*core.Skill, bool, error) {
	mu := s.lockClass(class)
	defer mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.classSeq[class]
	from := s.promotedThrough[class]
	if from >= len(seq) {
		return s.headSkillLocked(class), false, nil
	}
	window := seq[from:]

	var successes, failures int
	for _, id := range window {
		if s.reflexions[id].Outcome == core.OutcomeSuccess {
			successes++
		} else {
			failures++
		}
	}

	head := s.headSkillLocked(class)
	if head == nil {
		if successes < s.threshold || failures >= successes {
			s.logger.Debug("promotion deferred", "class", string(class), "successes", successes, "failures", failures, "threshold", s.threshold)
			return nil, false, nil
		}
		sk := &core.Skill{
			ID:         core.NewID(),
			Name:       skillName(s.reflexions[window[len(window)-1]].Critique, class),
			Class:      class,
			Procedure:  s.latestSuccessCritiqueLocked(window),
			Provenance: append([]string(nil), window...),
			CreatedAt:  s.now().UTC(),
		}
		sk.UpdatedAt = sk.CreatedAt
		sk.SuccessRate = s.recomputeRateLocked(sk.Provenance)
		s.skills[class] = append(s.skills[class], sk)
		s.skillByID[sk.ID] = sk
		s.promotedThrough[class] = len(seq)
		s.logger.Info("skill promoted", "class", string(class), "skill", sk.Name, "success_rate", sk.SuccessRate)
		return cloneSkill(sk), true, nil
	}

	// Existing skill: absorb the window, recompute (never drift) the rate.
	head.Provenance = append(head.Provenance, window...)
	head.SuccessRate = s.recomputeRateLocked(head.Provenance)
	if proc := s.latestSuccessCritiqueLocked(window); proc != "" {
		head.Procedure = proc
	}
	head.UpdatedAt = s.now().UTC()
	s.promotedThrough[class] = len(seq)
	return cloneSkill(head), true, nil
}

func (s *InMemoryStore) headSkillLocked(class core.Fingerprint) *core.Skill {
	list := s.skills[class]
	if len(list) == 0 {
		return nil
	}
	return list[0]
}

// recomputeRateLocked derives the success rate from the full provenance
// history rather than incrementally drifting a running value. Provenance ids
// whose reflexions are not held locally (imported skills) are excluded from
// the ratio.
func (s *InMemoryStore) recomputeRateLocked(provenance []string) float64 {
	var successes, known int
	for _, id := range provenance {
		if r, ok := s.reflexions[id]; ok {
			known++
			if r.Outcome == core.OutcomeSuccess {
				successes++
			}
		}
	}
	if known == 0 {
		return 0
	}
	return float64(successes) / float64(known)
}

func (s *InMemoryStore) latestSuccessCritiqueLocked(window []string) string {
	for i := len(window) - 1; i >= 0; i-- {
		if r := s.reflexions[window[i]]; r.Outcome == core.OutcomeSuccess {
			return r.Critique
		}
	}
	return ""
}

// ImportSkill restores a previously persisted skill, e.g. at process boot.
// Imported skills participate in retrieval and consolidation like promoted
// ones.
func (s *InMemoryStore) ImportSkill(_ context.Context, sk core.Skill) error {
	if sk.ID == "" || sk.Class == "" {
		return fmt.Errorf("imported skill requires id and class")
	}
	mu := s.lockClass(sk.Class)
	defer mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.skillByID[sk.ID]; exists {
		return fmt.Errorf("skill %s already present", sk.ID)
	}
	cp := cloneSkill(&sk)
	s.skills[sk.Class] = append(s.skills[sk.Class], cp)
	s.skillByID[sk.ID] = cp
	return nil
}

// SkillsForClass returns copies of all skills currently held for a class, in
// promotion/import order. Used by consolidation and tests.
func (s *InMemoryStore) SkillsForClass(class core.Fingerprint) []*core.Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Skill, 0, len(s.skills[class]))
	for _, sk := range s.skills[class] {
		out = append(out, cloneSkill(sk))
	}
	return out
}

// ReflexionCount returns the number of reflexions recorded for a class.
func (s *InMemoryStore) ReflexionCount(class core.Fingerprint) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classSeq[class])
}

func skillName(critique string, class core.Fingerprint) string {
	head := critique
	if idx := strings.IndexAny(head, ".\n"); idx > 0 {
		head = head[:idx]
	}
	head = strings.TrimSpace(head)
	if head == "" {
		suffix := string(class)
		if len(suffix) > 8 {
			suffix = suffix[:8]
		}
		return "skill-" + suffix
	}
	if len(head) > 60 {
		head = head[:60]
	}
	return head
}

func cloneVec(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func cloneSkill(sk *core.Skill) *core.Skill {
	cp := *sk
	cp.Provenance = append([]string(nil), sk.Provenance...)
	return &cp
}
