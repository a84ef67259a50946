package advisory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/model"
	"github.com/normanking/kaitd/internal/semantic"
)

func newTestCognitiveStore(t *testing.T) *cognitive.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cognitive_insights.json")
	store, err := cognitive.Open(cognitive.Options{Path: path})
	require.NoError(t, err)
	return store
}

func newTestEidosStore(t *testing.T) *eidosstore.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "eidos")
	store, err := eidosstore.Open(dir, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCognitiveSourceRanksByAdvisoryReadinessAndToolMatch(t *testing.T) {
	store := newTestCognitiveStore(t)
	_, err := store.Upsert(model.Insight{
		Key:         model.InsightKey(model.CategoryWisdom, "always check file exists before edit_file"),
		Category:    model.CategoryWisdom,
		Statement:   "always check file exists before edit_file",
		Validations: 10,
	})
	require.NoError(t, err)
	_, err = store.Upsert(model.Insight{
		Key:         model.InsightKey(model.CategoryWisdom, "generic good advice"),
		Category:    model.CategoryWisdom,
		Statement:   "generic good advice",
		Validations: 10,
	})
	require.NoError(t, err)

	src := NewCognitiveSource(store)
	results, err := src.Retrieve(context.Background(), Query{Tool: "edit_file"}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Contains(t, results[0].Text, "edit_file")
}

func TestEidosSourceMatchesTriggers(t *testing.T) {
	store := newTestEidosStore(t)
	ctx := context.Background()
	err := store.InsertDistillation(ctx, model.Distillation{
		DistillationID: model.NewDistillationID(),
		Type:           model.DistillationHeuristic,
		Statement:      "edit_file usually needs a dry run first",
		Confidence:     0.8,
		Triggers:       []string{"edit_file"},
		CreatedAtNs:    1,
	})
	require.NoError(t, err)
	err = store.InsertDistillation(ctx, model.Distillation{
		DistillationID: model.NewDistillationID(),
		Type:           model.DistillationHeuristic,
		Statement:      "unrelated distillation",
		Confidence:     0.9,
		Triggers:       []string{"other_tool"},
		CreatedAtNs:    2,
	})
	require.NoError(t, err)

	src := NewEidosSource(store)
	results, err := src.Retrieve(ctx, Query{Tool: "edit_file"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "edit_file usually needs a dry run first", results[0].Text)
}

func TestSemanticSourceReturnsNilWhenIndexEmpty(t *testing.T) {
	idx := semantic.NewIndex()
	src := NewSemanticSource(idx, semantic.NewKeywordEmbedder(0))
	results, err := src.Retrieve(context.Background(), Query{Context: "run tests"}, 5)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSemanticSourceSearchesIndex(t *testing.T) {
	idx := semantic.NewIndex()
	embedder := semantic.NewKeywordEmbedder(0)
	ctx := context.Background()

	vec, err := embedder.Embed(ctx, "always run the test suite before committing")
	require.NoError(t, err)
	idx.Upsert("k1", vec, "always run the test suite before committing")

	src := NewSemanticSource(idx, embedder)
	results, err := src.Retrieve(ctx, Query{Context: "run the test suite before you commit"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "k1", results[0].SourceKey)
}

func TestPacketSourceServesUnexpiredEntriesAndTracksExactHit(t *testing.T) {
	p := NewPacketSource(time.Minute)
	require.False(t, p.ExactHit(Query{Tool: "edit_file"}))

	p.Put("edit_file", []Candidate{{Text: "cached tip", Source: "packet", SourceKey: "p1", Score: 1.0}})
	require.True(t, p.ExactHit(Query{Tool: "edit_file"}))

	results, err := p.Retrieve(context.Background(), Query{Tool: "edit_file"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	none, err := p.Retrieve(context.Background(), Query{Tool: "other_tool"}, 5)
	require.NoError(t, err)
	require.Empty(t, none)
}
