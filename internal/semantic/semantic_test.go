package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordEmbedderSimilarTextsScoreHigher(t *testing.T) {
	k := NewKeywordEmbedder(0)
	ctx := context.Background()

	a, err := k.Embed(ctx, "always run the test suite before committing")
	require.NoError(t, err)
	b, err := k.Embed(ctx, "run the test suite before you commit")
	require.NoError(t, err)
	c, err := k.Embed(ctx, "the weather in paris is lovely today")
	require.NoError(t, err)

	simAB := a.Normalize().CosineSimilarity(b.Normalize())
	simAC := a.Normalize().CosineSimilarity(c.Normalize())
	require.Greater(t, simAB, simAC)
}

func TestKeywordEmbedderAlwaysAvailable(t *testing.T) {
	k := NewKeywordEmbedder(0)
	require.True(t, k.Available())
	require.Equal(t, "keyword-fallback", k.ModelName())
}

func TestFirstAvailableSkipsUnavailable(t *testing.T) {
	unavailable := &fakeEmbedder{available: false, name: "down"}
	available := &fakeEmbedder{available: true, name: "up"}

	got := FirstAvailable(unavailable, available)
	require.Same(t, available, got)
}

func TestFirstAvailableReturnsNilWhenNoneAvailable(t *testing.T) {
	require.Nil(t, FirstAvailable(&fakeEmbedder{available: false}))
}

func TestIndexSearchReturnsTopKByScore(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("a", Embedding{1, 0, 0}, "payload-a")
	idx.Upsert("b", Embedding{0, 1, 0}, "payload-b")
	idx.Upsert("c", Embedding{0.9, 0.1, 0}, "payload-c")

	results := idx.Search(Embedding{1, 0, 0}, 2)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].ID)
	require.Equal(t, "c", results[1].ID)
}

func TestIndexUpsertReplacesExisting(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("a", Embedding{1, 0}, "first")
	idx.Upsert("a", Embedding{0, 1}, "second")

	require.Equal(t, 1, idx.Size())
	results := idx.Search(Embedding{0, 1}, 1)
	require.Equal(t, "second", results[0].Payload)
}

func TestIndexRemove(t *testing.T) {
	idx := NewIndex()
	idx.Upsert("a", Embedding{1, 0}, nil)
	require.True(t, idx.Remove("a"))
	require.False(t, idx.Remove("a"))
	require.Equal(t, 0, idx.Size())
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	a := Embedding{1, 0}
	b := Embedding{0, 1}
	require.Equal(t, 0.0, a.CosineSimilarity(b))
}

type fakeEmbedder struct {
	available bool
	name      string
}

func (f *fakeEmbedder) Embed(context.Context, string) (Embedding, error) { return nil, nil }
func (f *fakeEmbedder) Dimension() int                                   { return DefaultEmbeddingDim }
func (f *fakeEmbedder) ModelName() string                                { return f.name }
func (f *fakeEmbedder) Available() bool                                  { return f.available }
