// Package eidos maintains the episodic predict-evaluate record of an
// agent's work: at most one active Episode and one open Step per session,
// sealed by tool outcomes and clustered by the Aggregator into reusable
// Distillations. It is grounded on the teacher's session-state tracker in
// internal/sessions (single-writer map keyed by session, idle-timeout
// sweep goroutine) layered on top of internal/eidosstore for durability.
package eidos

import (
	"context"
	"sync"
	"time"

	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/model"
)

const component = "eidos"

// Options configures a Tracker.
type Options struct {
	Store          *eidosstore.Store
	Bus            *eventbus.Bus
	StepTimeout    time.Duration
	SessionTimeout time.Duration
	Now            func() time.Time // overridable for tests; defaults to time.Now
}

// Tracker applies the Episode/Step state machine for every session and
// persists transitions through eidosstore.Store. Exactly one Tracker
// should own a given eidos.db; all mutation, for every session, is
// serialized through the single Tracker-wide mutex mu, so events from
// different sessions are applied one at a time.
type Tracker struct {
	store          *eidosstore.Store
	bus            *eventbus.Bus
	stepTimeout    time.Duration
	sessionTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	episode      *model.Episode
	openStep     *model.Step
	lastActivity time.Time
}

// New constructs a Tracker. Pass zero durations to use spec defaults
// (10 minute step timeout, 30 minute session timeout).
func New(opts Options) *Tracker {
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 10 * time.Minute
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		store:          opts.Store,
		bus:            opts.Bus,
		stepTimeout:    opts.StepTimeout,
		sessionTimeout: opts.SessionTimeout,
		now:            opts.Now,
		sessions:       make(map[string]*sessionState),
	}
}

// Observe applies a single Event to the session's Episode/Step state
// machine, opening or sealing as required by the event kind.
func (t *Tracker) Observe(ctx context.Context, e model.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ss, err := t.sessionFor(ctx, e.SessionID)
	if err != nil {
		return err
	}
	ss.lastActivity = t.now()

	switch e.Kind {
	case model.KindUserPrompt:
		if err := t.forceSealIfTimedOut(ctx, ss); err != nil {
			return err
		}
		if ss.episode == nil {
			if err := t.openEpisode(ctx, ss, e); err != nil {
				return err
			}
		}
	case model.KindPreTool:
		if err := t.ensureEpisode(ctx, ss, e); err != nil {
			return err
		}
		if err := t.openStep(ctx, ss, e); err != nil {
			return err
		}
	case model.KindPostTool:
		if err := t.sealStep(ctx, ss, e, model.OutcomeSuccess, model.EvalPassed); err != nil {
			return err
		}
	case model.KindPostToolFailure:
		if err := t.sealStep(ctx, ss, e, model.OutcomeFailure, model.EvalFailed); err != nil {
			return err
		}
	}
	return nil
}

// SweepIdle closes episodes and force-seals steps for sessions that have
// been idle past the session timeout. Intended to be called periodically
// by a background goroutine.
func (t *Tracker) SweepIdle(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for sessionID, ss := range t.sessions {
		if now.Sub(ss.lastActivity) < t.sessionTimeout {
			continue
		}
		if ss.openStep != nil {
			if err := t.abandonStep(ctx, ss); err != nil {
				return err
			}
		}
		if ss.episode != nil && ss.episode.IsOpen() {
			if err := t.closeEpisode(ctx, ss, model.OutcomeAbandoned); err != nil {
				return err
			}
		}
		delete(t.sessions, sessionID)
	}
	return nil
}

func (t *Tracker) sessionFor(ctx context.Context, sessionID string) (*sessionState, error) {
	if ss, ok := t.sessions[sessionID]; ok {
		return ss, nil
	}
	ss := &sessionState{lastActivity: t.now()}

	active, err := t.store.ActiveEpisode(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		ss.episode = active
		open, err := t.store.OpenStepsForSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(open) > 0 {
			s := open[0]
			ss.openStep = &s
		}
	}
	t.sessions[sessionID] = ss
	return ss, nil
}

func (t *Tracker) openEpisode(ctx context.Context, ss *sessionState, e model.Event) error {
	ep := model.Episode{
		EpisodeID: model.NewEpisodeID(),
		SessionID: e.SessionID,
		Goal:      e.Text,
		Phase:     model.PhaseExplore,
		Outcome:   model.OutcomeActive,
		StartedNs: e.TsNanos,
	}
	if err := t.store.InsertEpisode(ctx, ep); err != nil {
		return err
	}
	ss.episode = &ep
	return nil
}

func (t *Tracker) ensureEpisode(ctx context.Context, ss *sessionState, e model.Event) error {
	if ss.episode != nil && ss.episode.IsOpen() {
		return nil
	}
	return t.openEpisode(ctx, ss, e)
}

func (t *Tracker) openStep(ctx context.Context, ss *sessionState, e model.Event) error {
	if ss.openStep != nil {
		if err := t.abandonStep(ctx, ss); err != nil {
			return err
		}
	}
	st := model.Step{
		StepID:     model.NewStepID(),
		EpisodeID:  ss.episode.EpisodeID,
		SessionID:  e.SessionID,
		Tool:       e.Tool,
		Decision:   e.Text,
		ActionKind: model.ActionToolCall,
		Prediction: "",
		Evaluation: model.EvalOpen,
		OpenedNs:   e.TsNanos,
	}
	if err := t.store.InsertStep(ctx, st); err != nil {
		return err
	}
	ss.openStep = &st
	ss.episode.StepCount++
	ss.episode.Phase = model.PhaseExecute
	return t.store.UpdateEpisode(ctx, *ss.episode)
}

func (t *Tracker) sealStep(ctx context.Context, ss *sessionState, e model.Event, outcome model.Outcome, eval model.Evaluation) error {
	if ss.openStep == nil {
		// No matching pre_tool was observed (e.g. tracker restarted
		// mid-step); nothing to seal, and it is not an invariant
		// violation — the event is simply dropped from EIDOS.
		return nil
	}
	ss.openStep.Seal(outcome, eval, e.TsNanos)
	if err := t.store.SealStep(ctx, *ss.openStep); err != nil {
		return err
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Topic: eventbus.TopicStepSealed, Payload: *ss.openStep})
	}
	ss.openStep = nil
	return nil
}

func (t *Tracker) abandonStep(ctx context.Context, ss *sessionState) error {
	ss.openStep.Seal(model.OutcomeAbandoned, model.EvalFailed, t.now().UnixNano())
	if err := t.store.SealStep(ctx, *ss.openStep); err != nil {
		return err
	}
	if t.bus != nil {
		t.bus.Publish(eventbus.Event{Topic: eventbus.TopicStepSealed, Payload: *ss.openStep})
	}
	ss.openStep = nil
	return nil
}

func (t *Tracker) forceSealIfTimedOut(ctx context.Context, ss *sessionState) error {
	if ss.openStep == nil {
		return nil
	}
	openedAt := time.Unix(0, ss.openStep.OpenedNs)
	if t.now().Sub(openedAt) < t.stepTimeout {
		return nil
	}
	return t.abandonStep(ctx, ss)
}

func (t *Tracker) closeEpisode(ctx context.Context, ss *sessionState, outcome model.Outcome) error {
	ss.episode.Phase = model.PhaseConsolidate
	ss.episode.Outcome = outcome
	ss.episode.EndedNs = t.now().UnixNano()
	if err := t.store.UpdateEpisode(ctx, *ss.episode); err != nil {
		return err
	}
	ss.episode = nil
	return nil
}
