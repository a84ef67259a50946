package promotion

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
)

func newTestStore(t *testing.T) *cognitive.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "insights.json")
	store, err := cognitive.Open(cognitive.Options{Path: path})
	require.NoError(t, err)
	return store
}

func testPromotionConfig(dir string) config.PromotionConfig {
	return config.PromotionConfig{
		IntervalSec:       3600,
		DemotionThreshold: 0.65,
		TargetFiles: map[string]string{
			"wisdom": filepath.Join(dir, "CLAUDE.md"),
			"other":  filepath.Join(dir, "CLAUDE.md"),
		},
	}
}

func TestRunPromotesEligibleInsightAndWritesGuidanceBlock(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	key := model.InsightKey(model.CategoryWisdom, "always check file exists before edit_file")
	_, err := store.Upsert(model.Insight{
		Key:         key,
		Category:    model.CategoryWisdom,
		Statement:   "always check file exists before edit_file",
		Validations: 6,
	})
	require.NoError(t, err)
	ins, _ := store.Get(key)
	require.InDelta(t, 1.0, ins.Reliability, 0.001)

	cycle := New(Options{
		Store:     store,
		Promotion: testPromotionConfig(dir),
		Cognitive: config.CognitiveConfig{PromotionReliability: 0.80, PromotionValidations: 5},
	})

	report, err := cycle.Run()
	require.NoError(t, err)
	require.Equal(t, 1, report.Promoted)

	target := filepath.Join(dir, "CLAUDE.md")
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "always check file exists before edit_file")

	got, ok := store.Get(key)
	require.True(t, ok)
	require.True(t, got.Promoted)
	require.Equal(t, target, got.PromotedTo)
}

func TestRunDemotesAndRemovesGuidanceBlockOnReliabilityDrop(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	key := model.InsightKey(model.CategoryWisdom, "retry flaky network calls")

	_, err := store.Upsert(model.Insight{
		Key:         key,
		Category:    model.CategoryWisdom,
		Statement:   "retry flaky network calls",
		Validations: 8,
	})
	require.NoError(t, err)

	target := filepath.Join(dir, "CLAUDE.md")
	cycle := New(Options{
		Store:     store,
		Promotion: testPromotionConfig(dir),
		Cognitive: config.CognitiveConfig{PromotionReliability: 0.80, PromotionValidations: 5},
	})
	_, err = cycle.Run()
	require.NoError(t, err)
	require.Contains(t, listBlockKeys(target), key)

	_, err = store.Contradict(key, "evt_1")
	require.NoError(t, err)
	_, err = store.Contradict(key, "evt_2")
	require.NoError(t, err)
	_, err = store.Contradict(key, "evt_3")
	require.NoError(t, err)
	_, err = store.Contradict(key, "evt_4")
	require.NoError(t, err)
	_, err = store.Contradict(key, "evt_5")
	require.NoError(t, err)
	_, err = store.Contradict(key, "evt_6")
	require.NoError(t, err)

	got, _ := store.Get(key)
	require.Less(t, got.Reliability, 0.65)

	report, err := cycle.Run()
	require.NoError(t, err)
	require.Equal(t, 1, report.Demoted)
	require.NotContains(t, listBlockKeys(target), key)

	after, _ := store.Get(key)
	require.False(t, after.Promoted)
}
