package memcapture

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/model"
)

func newCapturer() *Capturer {
	return New(config.MemoryConfig{Threshold: 0.5, PatchMaxChars: 2000, PatchMinChars: 8})
}

func TestCaptureSkipsShortText(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{EventID: "e1", Text: "ok"})
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestCaptureDetectsExplicitMemoryMarker(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e1",
		Kind:    model.KindUserPrompt,
		Text:    "Remember to always run the linter before committing changes",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.CategoryWisdom, out[0].Category)
	require.Contains(t, out[0].Evidence, "e1")
}

func TestCaptureDetectsMetaLearning(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e2",
		Kind:    model.KindPostTool,
		Text:    "Turns out the API rate-limits after 100 requests per minute, I learned that the hard way",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.CategoryMetaLearning, out[0].Category)
}

func TestCaptureDetectsSelfAwareness(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e3",
		Kind:    model.KindUserPrompt,
		Text:    "Actually, I was wrong about that approach, I should have checked the docs first",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.CategorySelfAwareness, out[0].Category)
}

func TestCaptureDetectsUserUnderstanding(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e4",
		Kind:    model.KindUserPrompt,
		Text:    "You prefer tabs over spaces and you always want commits kept small",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, model.CategoryUserUnderstanding, out[0].Category)
}

func TestCaptureDetectsTaskSummary(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e5",
		Kind:    model.KindPostTool,
		Text:    "Task completed: migrated the database schema, updated all call sites, and verified the test suite passes cleanly end to end",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestCaptureSkipsLowSignalText(t *testing.T) {
	c := newCapturer()
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e6",
		Kind:    model.KindPreTool,
		Text:    "Running the build script now",
	})
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestCaptureTruncatesLongText(t *testing.T) {
	c := New(config.MemoryConfig{Threshold: 0.1, PatchMaxChars: 20, PatchMinChars: 1})
	out, err := c.Capture(context.Background(), model.Event{
		EventID: "e7",
		Kind:    model.KindUserPrompt,
		Text:    "remember " + strings.Repeat("x", 100),
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.LessOrEqual(t, len(out[0].Statement), 20)
}
