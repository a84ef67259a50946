package cognitive

import "testing"

func TestWilsonLowerBoundNoTrials(t *testing.T) {
	if got := WilsonLowerBound(0, 0); got != 0 {
		t.Errorf("expected 0 with no trials, got %v", got)
	}
}

func TestWilsonLowerBoundShrinksSmallSamples(t *testing.T) {
	small := WilsonLowerBound(1, 1)
	large := WilsonLowerBound(100, 100)

	if small >= large {
		t.Errorf("expected a 1/1 record to have a lower bound than a 100/100 record, got small=%v large=%v", small, large)
	}
	if small <= 0 || small >= 1 {
		t.Errorf("expected small-sample lower bound strictly between 0 and 1, got %v", small)
	}
}

func TestWilsonLowerBoundMonotoneInReliability(t *testing.T) {
	low := WilsonLowerBound(5, 20)
	high := WilsonLowerBound(18, 20)
	if low >= high {
		t.Errorf("expected higher success rate to produce a higher lower bound, got low=%v high=%v", low, high)
	}
}
