package scoring

import (
	"testing"

	"github.com/normanking/kaitd/internal/model"
)

func TestScoreImportanceFailureBias(t *testing.T) {
	failure := model.Event{Kind: model.KindPostToolFailure, Text: "command exited nonzero"}
	success := model.Event{Kind: model.KindPostTool, Text: "command exited nonzero"}

	if ScoreImportance(failure) <= ScoreImportance(success) {
		t.Error("expected post_tool_failure to score higher than an equivalent post_tool event")
	}
}

func TestScoreImportanceMemoryMarker(t *testing.T) {
	plain := model.Event{Kind: model.KindUserPrompt, Text: "run the tests"}
	marked := model.Event{Kind: model.KindUserPrompt, Text: "remember to always run the tests first"}

	if ScoreImportance(marked) <= ScoreImportance(plain) {
		t.Error("expected a memory-marker prompt to score higher than a plain prompt")
	}
}

func TestScoreImportanceBounded(t *testing.T) {
	e := model.Event{Kind: model.KindPostToolFailure, Text: "remember always never don't forget important note that incorrect"}
	score := ScoreImportance(e)
	if score < 0 || score > 1 {
		t.Errorf("expected score in [0,1], got %v", score)
	}
}

func TestHasMemoryMarker(t *testing.T) {
	if !HasMemoryMarker("Always run Glob before Read") {
		t.Error("expected 'always' to be detected as a memory marker")
	}
	if HasMemoryMarker("run the build") {
		t.Error("expected plain text to not match any memory marker")
	}
}
