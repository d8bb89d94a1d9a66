package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/embedding"
)

var _ core.MemoryStore = (*InMemoryStore)(nil)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func embedText(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := embedding.NewHashEmbedder().Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}

func appendReflexions(t *testing.T, s core.MemoryStore, class core.Fingerprint, base time.Time, outcomes ...core.Outcome) []string {
	t.Helper()
	ids := make([]string, 0, len(outcomes))
	for i, outcome := range outcomes {
		rec := core.ReflexionRecord{
			ID:          fmt.Sprintf("rx-%s-%d", string(class)[:4], i),
			Fingerprint: class,
			Outcome:     outcome,
			Critique:    fmt.Sprintf("Attempt %d: keep the diff minimal and run the tests first.", i),
			Embedding:   embedText(t, "keep the diff minimal"),
			EpisodicID:  fmt.Sprintf("ep-%d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendReflexion(context.Background(), rec))
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestAppendEpisodic_RoundTripByteIdentical(t *testing.T) {
	s := NewInMemoryStore()
	payload := "step 1: parse\nstep 2: \x00\xffbinary-ish\tpayload"
	rec := core.EpisodicRecord{
		ID:        "ep-1",
		SessionID: "sess-1",
		TaskID:    "task-1",
		Timestamp: time.Now().UTC(),
		Embedding: embedText(t, payload),
		Trace:     payload,
	}
	require.NoError(t, s.AppendEpisodic(context.Background(), rec))

	got, err := s.GetEpisodic(context.Background(), "ep-1")
	require.NoError(t, err)
	assert.Equal(t, payload, got.Trace)
	assert.Equal(t, rec.Embedding, got.Embedding)
}

func TestAppendEpisodic_RejectsDuplicateID(t *testing.T) {
	s := NewInMemoryStore()
	rec := core.EpisodicRecord{ID: "ep-1", Trace: "original", Timestamp: time.Now()}
	require.NoError(t, s.AppendEpisodic(context.Background(), rec))

	rec.Trace = "edited"
	err := s.AppendEpisodic(context.Background(), rec)
	require.Error(t, err)

	got, _ := s.GetEpisodic(context.Background(), "ep-1")
	assert.Equal(t, "original", got.Trace)
}

func TestQuery_OrdersByBlendedScoreWithDeterministicTies(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemoryStore(func(o *Options) {
		o.Now = fixedClock(now)
		o.RecencyHalfLife = time.Hour
	})
	ctx := context.Background()

	near := embedText(t, "compile the parser module")
	far := embedText(t, "water the office plants")

	// Same embedding, different ages: the fresher record must rank first.
	require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: "old", Embedding: near, Trace: "old", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: "fresh", Embedding: near, Trace: "fresh", Timestamp: now.Add(-time.Minute)}))
	require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: "unrelated", Embedding: far, Trace: "unrelated", Timestamp: now}))

	res, err := s.Query(ctx, embedText(t, "compile the parser module"), core.LayerEpisodic, 3)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "fresh", res[0].Record.ID)
	assert.Equal(t, "old", res[1].Record.ID)
	assert.Equal(t, "unrelated", res[2].Record.ID)

	// Exact ties (same embedding, same timestamp) break by id ascending.
	ts := now.Add(-time.Minute)
	require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: "tie-b", Embedding: near, Trace: "b", Timestamp: ts}))
	require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: "tie-a", Embedding: near, Trace: "a", Timestamp: ts}))

	res, err = s.Query(ctx, near, core.LayerEpisodic, 5)
	require.NoError(t, err)
	ids := []string{res[0].Record.ID, res[1].Record.ID, res[2].Record.ID}
	assert.Equal(t, []string{"fresh", "tie-a", "tie-b"}, ids)
}

func TestQuery_KLimitsAndZeroK(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	vec := embedText(t, "anything")
	for i := 0; i < 4; i++ {
		require.NoError(t, s.AppendEpisodic(ctx, core.EpisodicRecord{ID: fmt.Sprintf("ep-%d", i), Embedding: vec, Trace: "t", Timestamp: time.Now()}))
	}

	res, err := s.Query(ctx, vec, core.LayerEpisodic, 2)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Query(ctx, vec, core.LayerEpisodic, 0)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestPromote_ThresholdCreatesExactlyOneSkill(t *testing.T) {
	class := core.FingerprintOf("implement the handlers", "coder")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 5 })
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

	appendReflexions(t, s, class, base,
		core.OutcomeSuccess, core.OutcomeSuccess, core.OutcomeSuccess, core.OutcomeSuccess)

	// 4 successes: below threshold, no skill.
	sk, promoted, err := s.Promote(ctx, class)
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.Nil(t, sk)

	// 5th success crosses the threshold: exactly one skill.
	require.NoError(t, s.AppendReflexion(ctx, core.ReflexionRecord{
		ID: "rx-final", Fingerprint: class, Outcome: core.OutcomeSuccess,
		Critique: "Write the failing test before the fix.", Timestamp: base.Add(time.Hour),
	}))
	sk, promoted, err = s.Promote(ctx, class)
	require.NoError(t, err)
	require.True(t, promoted)
	require.NotNil(t, sk)
	assert.Equal(t, class, sk.Class)
	assert.Len(t, sk.Provenance, 5)
	assert.InDelta(t, 1.0, sk.SuccessRate, 1e-9)
	assert.Len(t, s.SkillsForClass(class), 1)

	// A 6th success updates the rate, never creates a duplicate.
	require.NoError(t, s.AppendReflexion(ctx, core.ReflexionRecord{
		ID: "rx-sixth", Fingerprint: class, Outcome: core.OutcomeFailure,
		Critique: "Missed an edge case in retry handling.", Timestamp: base.Add(2 * time.Hour),
	}))
	updated, promoted, err := s.Promote(ctx, class)
	require.NoError(t, err)
	require.True(t, promoted)
	assert.Equal(t, sk.ID, updated.ID)
	assert.Len(t, updated.Provenance, 6)
	assert.InDelta(t, 5.0/6.0, updated.SuccessRate, 1e-9)
	assert.Len(t, s.SkillsForClass(class), 1)
}

func TestPromote_ShortClassWithEmptyCritique(t *testing.T) {
	// Callers may append reflexions under any non-empty fingerprint; a class
	// shorter than the name suffix with no usable critique must still promote.
	class := core.Fingerprint("x")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 1 })
	ctx := context.Background()

	require.NoError(t, s.AppendReflexion(ctx, core.ReflexionRecord{
		ID: "rx-short", Fingerprint: class, Outcome: core.OutcomeSuccess,
		Timestamp: time.Now(),
	}))

	sk, promoted, err := s.Promote(ctx, class)
	require.NoError(t, err)
	require.True(t, promoted)
	require.NotNil(t, sk)
	assert.Equal(t, "skill-x", sk.Name)
}

func TestPromote_Idempotent(t *testing.T) {
	class := core.FingerprintOf("write unit tests", "tester")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 3 })
	ctx := context.Background()

	appendReflexions(t, s, class, time.Now(), core.OutcomeSuccess, core.OutcomeSuccess, core.OutcomeSuccess)

	first, promoted, err := s.Promote(ctx, class)
	require.NoError(t, err)
	require.True(t, promoted)

	// No new reflexions: repeated promotion must be a no-op.
	for i := 0; i < 3; i++ {
		again, promoted, err := s.Promote(ctx, class)
		require.NoError(t, err)
		assert.False(t, promoted)
		assert.Equal(t, first.Provenance, again.Provenance)
		assert.Equal(t, first.SuccessRate, again.SuccessRate)
	}
	assert.Len(t, s.SkillsForClass(class), 1)
}

func TestPromote_FailureMajorityBlocksCreation(t *testing.T) {
	class := core.FingerprintOf("deploy the service", "deployer")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 3 })
	ctx := context.Background()

	appendReflexions(t, s, class, time.Now(),
		core.OutcomeSuccess, core.OutcomeFailure, core.OutcomeSuccess,
		core.OutcomeFailure, core.OutcomeFailure, core.OutcomeSuccess)

	// 3 successes meet the threshold but 3 failures tie them: no creation.
	sk, promoted, err := s.Promote(ctx, class)
	require.NoError(t, err)
	assert.False(t, promoted)
	assert.Nil(t, sk)
}

func TestFindSkillAndRecordUse(t *testing.T) {
	class := core.FingerprintOf("review the diff", "reviewer")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 2 })
	ctx := context.Background()

	_, found, err := s.FindSkill(ctx, class)
	require.NoError(t, err)
	assert.False(t, found)

	appendReflexions(t, s, class, time.Now(), core.OutcomeSuccess, core.OutcomeSuccess)
	_, _, err = s.Promote(ctx, class)
	require.NoError(t, err)

	sk, found, err := s.FindSkill(ctx, class)
	require.NoError(t, err)
	require.True(t, found)
	assert.Zero(t, sk.UsageCount)

	require.NoError(t, s.RecordSkillUse(ctx, sk.ID))
	require.NoError(t, s.RecordSkillUse(ctx, sk.ID))
	sk, _, _ = s.FindSkill(ctx, class)
	assert.Equal(t, 2, sk.UsageCount)

	assert.Error(t, s.RecordSkillUse(ctx, "missing"))
}

func TestAppendReflexion_ConcurrentSameClassSerialized(t *testing.T) {
	class := core.FingerprintOf("index the corpus", "researcher")
	s := NewInMemoryStore(func(o *Options) { o.PromotionThreshold = 100 })
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := core.ReflexionRecord{
				ID:          fmt.Sprintf("rx-concurrent-%d", i),
				Fingerprint: class,
				Outcome:     core.OutcomeSuccess,
				Critique:    "ok",
				Timestamp:   time.Now(),
			}
			assert.NoError(t, s.AppendReflexion(ctx, rec))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, s.ReflexionCount(class))
}
