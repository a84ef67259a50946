// Package feedback implements the implicit feedback loop: every advise()
// call that emitted items records an Exposure, and the next same-session
// event either confirms it (followed/unhelpful, driving validate()/
// contradict() on the underlying insight or distillation) or lets it
// expire. Grounded on the teacher's cognitive/feedback package for the
// record-then-resolve shape (RecordSuccess/RecordFailure feeding a
// background promotion cycle), retargeted here from template grading to
// advice exposure resolution; the background sweep loop reuses that
// package's Start/Stop ticker-driven worker pattern.
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/model"
)

// Options configures a Tracker.
type Options struct {
	Cognitive       *cognitive.Store
	Eidos           *eidosstore.Store
	Log             zerolog.Logger
	Logger          *Logger // feedback.jsonl writer; nil disables logging
	ExposureTimeout time.Duration
	ExposureExpiry  time.Duration
	Now             func() time.Time
}

// Tracker holds pending Exposures keyed by (session, tool, advice ID) and
// resolves them against subsequent events.
type Tracker struct {
	cognitive *cognitive.Store
	eidos     *eidosstore.Store
	log       zerolog.Logger
	feedback  *Logger
	timeout   time.Duration
	expiry    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*model.Exposure // sessionID|tool|adviceID -> pending exposure
}

// New constructs a Tracker.
func New(opts Options) *Tracker {
	timeout := opts.ExposureTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	expiry := opts.ExposureExpiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		cognitive: opts.Cognitive,
		eidos:     opts.Eidos,
		log:       opts.Log,
		feedback:  opts.Logger,
		timeout:   timeout,
		expiry:    expiry,
		now:       now,
		pending:   make(map[string]*model.Exposure),
	}
}

// RecordExposure registers one Exposure per emitted advice item, keyed by
// (session, tool, advice ID). Re-recording the same advice ID replaces its
// pending exposure; items with other advice IDs stay pending alongside it,
// and the next matching event resolves all of them.
func (t *Tracker) RecordExposure(sessionID, tool string, items []model.AdviceItem) {
	if len(items) == 0 {
		return
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, item := range items {
		t.pending[sessionID+"|"+tool+"|"+item.AdviceID] = &model.Exposure{
			SessionID:  sessionID,
			Tool:       tool,
			AdviceID:   item.AdviceID,
			Source:     item.Source,
			SourceKeys: []string{item.SourceKey},
			ShownAtNs:  now.UnixNano(),
			State:      model.ExposurePending,
		}
	}
}

// Observe resolves pending exposures against an incoming event. post_tool
// and post_tool_failure events resolve exposures for the same (session,
// tool); any other tool observed for the session marks that tool's
// pending exposures ignored.
func (t *Tracker) Observe(ctx context.Context, ev model.Event) {
	now := t.now()

	switch ev.Kind {
	case model.KindPostTool:
		t.resolve(ctx, ev.SessionID, ev.Tool, model.SignalFollowed, true, now)
	case model.KindPostToolFailure:
		t.resolve(ctx, ev.SessionID, ev.Tool, model.SignalUnhelpful, false, now)
	case model.KindPreTool:
		t.ignoreOtherTools(ev.SessionID, ev.Tool, now)
	}
}

// resolve matches every pending exposure for (sessionID, tool) to a
// signal, applies validate()/contradict() to its source, logs a
// FeedbackEntry, and removes it from the pending set.
func (t *Tracker) resolve(ctx context.Context, sessionID, tool string, signal model.Signal, success bool, now time.Time) {
	t.mu.Lock()
	var matched []*model.Exposure
	prefix := sessionID + "|" + tool + "|"
	for key, exp := range t.pending {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		matched = append(matched, exp)
		delete(t.pending, key)
	}
	t.mu.Unlock()

	for _, exp := range matched {
		t.applySignal(ctx, exp, signal, success, now)
	}
}

// ignoreOtherTools marks pending exposures for other tools in the same
// session as ignored once the exposure timeout has elapsed, matching the
// spec's "different tool called within T_exposure_timeout" rule — a tool
// switch inside the timeout window still gives the original tool's advice
// a chance to be confirmed by a later same-tool event.
func (t *Tracker) ignoreOtherTools(sessionID, tool string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, exp := range t.pending {
		if exp.SessionID != sessionID || exp.Tool == tool {
			continue
		}
		age := now.Sub(time.Unix(0, exp.ShownAtNs))
		if age < t.timeout {
			continue
		}
		exp.State = model.ExposureIgnored
		delete(t.pending, key)
		if t.feedback != nil {
			_ = t.feedback.Append(model.FeedbackEntry{
				AdviceID:    exp.AdviceID,
				Tool:        exp.Tool,
				Signal:      model.SignalIgnored,
				Success:     false,
				SourcesUsed: []string{exp.Source},
				LatencyS:    age.Seconds(),
			})
		}
	}
}

// SweepExpired drops pending exposures older than the configured expiry
// without emitting a feedback signal, matching the Exposure state
// machine's pending → expired transition.
func (t *Tracker) SweepExpired() int {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	dropped := 0
	for key, exp := range t.pending {
		if now.Sub(time.Unix(0, exp.ShownAtNs)) >= t.expiry {
			delete(t.pending, key)
			dropped++
		}
	}
	return dropped
}

// applySignal calls validate() or contradict() on the exposure's source
// insight/distillation and appends a FeedbackEntry.
func (t *Tracker) applySignal(ctx context.Context, exp *model.Exposure, signal model.Signal, success bool, now time.Time) {
	for _, key := range exp.SourceKeys {
		var err error
		switch exp.Source {
		case "cognitive":
			if t.cognitive == nil {
				continue
			}
			if success {
				_, err = t.cognitive.Validate(key, exp.AdviceID)
			} else {
				_, err = t.cognitive.Contradict(key, exp.AdviceID)
			}
		case "eidos":
			if t.eidos == nil {
				continue
			}
			if success {
				err = t.eidos.ValidateDistillation(ctx, key)
			} else {
				err = t.eidos.ContradictDistillation(ctx, key)
			}
		default:
			// semantic and packet candidates have no directly validatable
			// backing entity; the signal is still logged for rate tracking.
		}
		if err != nil {
			t.log.Warn().Err(err).Str("source", exp.Source).Str("key", key).Msg("failed to apply feedback signal")
		}
	}

	if t.feedback != nil {
		latency := now.Sub(time.Unix(0, exp.ShownAtNs)).Seconds()
		if err := t.feedback.Append(model.FeedbackEntry{
			AdviceID:    exp.AdviceID,
			Tool:        exp.Tool,
			Signal:      signal,
			Success:     success,
			SourcesUsed: []string{exp.Source},
			LatencyS:    latency,
		}); err != nil {
			t.log.Warn().Err(err).Msg("failed to append feedback entry")
		}
	}
}
