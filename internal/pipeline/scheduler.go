// Package pipeline implements the batch scheduler that drains the event
// queue and fans each surviving event out to the downstream sinks: memory
// capture, the Meta-Ralph quality gate, EIDOS, a stubbed pluggable observer
// slot (Chips, closed-source, a no-op in this build), and the implicit
// feedback tracker that links predictions to outcomes. It is grounded on
// the Start/Stop/runWorker-with-time.Ticker background-loop shape already
// used by internal/feedback and internal/promotion (itself grounded on the
// teacher's cognitive/feedback/loop.go), since a single scheduler loop on
// its own timer is the closest teacher analogue to this cycle.
package pipeline

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/model"
	"github.com/normanking/kaitd/internal/queue"
)

const component = "pipeline"

// Stats summarizes one scheduler cycle.
type Stats struct {
	TsNanos         int64 `json:"ts_ns"`
	EventsProcessed int   `json:"events_processed"`
	InsightsCreated int   `json:"insights_created"`
	DurationMs      int64 `json:"duration_ms"`
	EmptyCycles     int   `json:"empty_cycles"`
}

// Status is the subset of scheduler state the ingest daemon's /status
// endpoint and backpressure decisions need.
type Status struct {
	QueueDepth     int64
	LastCycleAgeS  float64
	HardPressure   bool
	LastStats      Stats
}

// MemoryCapture produces candidate insights from one event's text, or nil
// if nothing scored above its capture threshold.
type MemoryCapture interface {
	Capture(ctx context.Context, ev model.Event) ([]model.Insight, error)
}

// QualityGate grades one candidate insight Memory Capture just produced.
type QualityGate interface {
	Evaluate(ctx context.Context, candidate model.Insight) (model.Verdict, error)
}

// EidosObserver applies the episode/step state machine to one event.
type EidosObserver interface {
	Observe(ctx context.Context, ev model.Event) error
}

// Observer is a fire-and-forget sink: the Chips stub slot and the
// feedback tracker's outcome linker both satisfy it.
type Observer interface {
	Observe(ctx context.Context, ev model.Event)
}

// InsightStore receives only the verdicts Meta-Ralph classifies as quality.
type InsightStore interface {
	Upsert(ins model.Insight) (*model.Insight, error)
}

// NopObserver is the default OSS-mode Chips stub: it observes nothing.
type NopObserver struct{}

// Observe is a no-op.
func (NopObserver) Observe(context.Context, model.Event) {}

// Options configures a Scheduler.
type Options struct {
	Queue    *queue.Queue
	Config   config.PipelineConfig
	Memory   MemoryCapture
	Quality  QualityGate
	Eidos    EidosObserver
	Chips    Observer // pluggable observer slot; defaults to NopObserver
	Outcomes Observer // predictions/outcomes linker, typically a feedback.Tracker
	Insights InsightStore
	Bus      *eventbus.Bus
	Log      zerolog.Logger
	Rand     *rand.Rand
	Now      func() time.Time
}

// Scheduler runs batch cycles over the event queue.
type Scheduler struct {
	queue    *queue.Queue
	cfg      config.PipelineConfig
	memory   MemoryCapture
	quality  QualityGate
	eidos    EidosObserver
	chips    Observer
	outcomes Observer
	insights InsightStore
	bus      *eventbus.Bus
	log      zerolog.Logger
	rng      *rand.Rand
	now      func() time.Time

	mu            sync.Mutex
	lastCycleAt   time.Time
	lastStats     Stats
	lastHardPress bool
}

// New constructs a Scheduler.
func New(opts Options) *Scheduler {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(now().UnixNano()))
	}
	chips := opts.Chips
	if chips == nil {
		chips = NopObserver{}
	}
	return &Scheduler{
		queue:    opts.Queue,
		cfg:      opts.Config,
		memory:   opts.Memory,
		quality:  opts.Quality,
		eidos:    opts.Eidos,
		chips:    chips,
		outcomes: opts.Outcomes,
		insights: opts.Insights,
		bus:      opts.Bus,
		log:      opts.Log,
		rng:      rng,
		now:      now,
	}
}

// RunCycle reads up to a backpressure-adjusted batch from the queue,
// partitions it by priority, fans each surviving event out to the
// configured sinks, and commits the new queue offset.
func (s *Scheduler) RunCycle(ctx context.Context) (*Stats, error) {
	start := s.now()

	st, err := s.queue.LoadState()
	if err != nil {
		return nil, err
	}
	depth, err := s.queue.Depth(st.CommittedOffset)
	if err != nil {
		return nil, err
	}

	batch := s.cfg.BatchMax
	if batch <= 0 {
		batch = 1000
	}
	softPressure := int64(s.cfg.SoftPressure)
	if softPressure > 0 && depth > softPressure {
		batch *= 2
	}
	hardPressure := s.cfg.HardPressure > 0 && depth > int64(s.cfg.HardPressure)

	entries, newOffset, err := s.queue.ReadFrom(st.CommittedOffset, batch)
	if err != nil {
		return nil, err
	}

	stats := Stats{TsNanos: start.UnixNano()}
	if len(entries) == 0 {
		stats.EmptyCycles = 1
		if err := s.queue.MergeOverflow(); err != nil {
			s.log.Warn().Err(err).Msg("merge overflow failed on idle cycle")
		}
		s.recordCycle(stats, depth, hardPressure)
		return &stats, nil
	}

	for _, qe := range partitionByPriority(entries) {
		ev := qe.Event
		if !s.keep(ev) {
			continue
		}
		stats.EventsProcessed++
		s.fanOut(ctx, ev, &stats)
	}

	if err := s.queue.CommitState(queue.State{CommittedOffset: newOffset}); err != nil {
		return &stats, err
	}
	stats.DurationMs = s.now().Sub(start).Milliseconds()
	s.recordCycle(stats, depth, hardPressure)
	return &stats, nil
}

// fanOut sends ev through the five sinks in spec order: memory capture,
// Meta-Ralph on whatever candidates memory capture produced, EIDOS, the
// Chips stub, then the outcomes linker. A sink failure is logged and does
// not stop the remaining sinks from seeing ev.
func (s *Scheduler) fanOut(ctx context.Context, ev model.Event, stats *Stats) {
	if s.memory != nil {
		candidates, err := s.memory.Capture(ctx, ev)
		if err != nil {
			s.log.Warn().Err(err).Str("event", ev.EventID).Msg("memory capture failed")
		}
		for _, cand := range candidates {
			s.gradeCandidate(ctx, cand, stats)
		}
	}

	if s.eidos != nil {
		if err := s.eidos.Observe(ctx, ev); err != nil {
			s.log.Warn().Err(err).Str("event", ev.EventID).Msg("eidos observe failed")
		}
	}

	s.chips.Observe(ctx, ev)

	if s.outcomes != nil {
		s.outcomes.Observe(ctx, ev)
	}
}

func (s *Scheduler) gradeCandidate(ctx context.Context, cand model.Insight, stats *Stats) {
	if s.quality == nil {
		return
	}
	verdict, err := s.quality.Evaluate(ctx, cand)
	if err != nil {
		s.log.Warn().Err(err).Str("candidate", cand.Key).Msg("meta-ralph evaluate failed")
		return
	}
	if verdict.Label != model.VerdictQuality || s.insights == nil {
		return
	}
	if _, err := s.insights.Upsert(cand); err != nil {
		s.log.Warn().Err(err).Str("candidate", cand.Key).Msg("insight upsert failed")
		return
	}
	stats.InsightsCreated++
}

// keep implements the importance-sampling rule: events below 0.3
// importance are kept at LowKeepRate; everything else is always kept.
func (s *Scheduler) keep(ev model.Event) bool {
	if ev.Importance >= 0.3 {
		return true
	}
	rate := s.cfg.LowKeepRate
	if rate <= 0 {
		rate = 0.25
	}
	return s.rng.Float64() < rate
}

func (s *Scheduler) recordCycle(stats Stats, depth int64, hardPressure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycleAt = s.now()
	s.lastStats = stats
	s.lastHardPress = hardPressure
	_ = depth
}

// Status reports the scheduler's current depth/pressure/last-cycle state
// for the ingest daemon's GET /status handler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth, _ := s.queue.Depth(s.committedOffsetLocked())
	age := 0.0
	if !s.lastCycleAt.IsZero() {
		age = s.now().Sub(s.lastCycleAt).Seconds()
	}
	return Status{
		QueueDepth:    depth,
		LastCycleAgeS: age,
		HardPressure:  s.lastHardPress,
		LastStats:     s.lastStats,
	}
}

// HardPressure reports whether the queue exceeded hard_pressure as of the
// most recently completed cycle; the ingest handler uses this to decide
// whether to return 429 without itself re-reading the queue file.
func (s *Scheduler) HardPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHardPress
}

func (s *Scheduler) committedOffsetLocked() int64 {
	st, err := s.queue.LoadState()
	if err != nil {
		return 0
	}
	return st.CommittedOffset
}

var priorityRank = map[model.Priority]int{
	model.PriorityHigh:   0,
	model.PriorityMedium: 1,
	model.PriorityLow:    2,
}

// partitionByPriority returns entries ordered HIGH, then MEDIUM, then LOW,
// preserving arrival order within each class.
func partitionByPriority(entries []model.QueueEntry) []model.QueueEntry {
	out := make([]model.QueueEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
	})
	return out
}
