// Package cognitive implements the single-writer insight store: upsert,
// validate, contradict, demote, reliability recompute, and advisory
// readiness scoring, persisted as a full JSON snapshot rewritten via
// temp+rename (cognitive_insights.json). It is grounded on the teacher's
// SQLite store lifecycle (pragmas, atomic persistence, single-writer
// discipline) adapted to the literal snapshot-file contract spec.md §6
// mandates for this store.
package cognitive

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

const component = "cognitive"

// categoryWeight biases advisory readiness per category; wisdom and
// reasoning insights are weighted highest because they generalize across
// tools, while self_awareness insights are narrower.
var categoryWeight = map[model.Category]float64{
	model.CategoryWisdom:            1.0,
	model.CategoryReasoning:         0.95,
	model.CategoryMetaLearning:      0.85,
	model.CategoryUserUnderstanding: 0.8,
	model.CategorySelfAwareness:     0.7,
	model.CategoryOther:             0.6,
}

// Store is the single-writer Cognitive insight store. All mutating
// operations take the write lock; Snapshot takes only a read lock and
// returns copies, so concurrent readers never block the writer for long
// and never observe a torn update.
type Store struct {
	mu         sync.RWMutex
	insights   map[string]*model.Insight
	path       string
	ringSize   int
	halflife   time.Duration
	bus        *eventbus.Bus
	degraded   bool
}

// Options configures a Store.
type Options struct {
	Path             string
	EvidenceRingSize int
	ReliabilityHalflife time.Duration
	Bus              *eventbus.Bus
}

// Open loads the store from its snapshot file, or starts empty if the
// file does not exist yet.
func Open(opts Options) (*Store, error) {
	if opts.EvidenceRingSize <= 0 {
		opts.EvidenceRingSize = model.EvidenceRingSize
	}
	if opts.ReliabilityHalflife <= 0 {
		opts.ReliabilityHalflife = 14 * 24 * time.Hour
	}
	s := &Store{
		insights: make(map[string]*model.Insight),
		path:     opts.Path,
		ringSize: opts.EvidenceRingSize,
		halflife: opts.ReliabilityHalflife,
		bus:      opts.Bus,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return kaitkerr.Transient(component, "load", err)
	}
	var list []*model.Insight
	if err := json.Unmarshal(data, &list); err != nil {
		return kaitkerr.Invariant(component, "parse_snapshot", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ins := range list {
		s.insights[ins.Key] = ins
	}
	return nil
}

// persist rewrites the full snapshot via temp+rename. Called with the
// write lock already held by the caller's operation.
func (s *Store) persist() error {
	list := make([]*model.Insight, 0, len(s.insights))
	for _, ins := range s.insights {
		list = append(list, ins)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return kaitkerr.BadInput(component, "marshal_snapshot", err)
	}

	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return kaitkerr.Transient(component, "mkdir", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.degraded = true
		return kaitkerr.Transient(component, "write_tmp", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.degraded = true
		return kaitkerr.Transient(component, "rename", err)
	}
	s.degraded = false
	return nil
}

func (s *Store) publish(ins *model.Insight) {
	if s.bus == nil {
		return
	}
	cp := *ins
	s.bus.Publish(eventbus.Event{Topic: eventbus.TopicInsightUpserted, Payload: &cp})
}

// Upsert inserts a new insight or merges evidence into an existing one
// keyed by Key. Reliability is never lowered arbitrarily on merge: only
// validate/contradict adjust the counters.
func (s *Store) Upsert(ins model.Insight) (*model.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.insights[ins.Key]
	if !ok {
		cp := ins
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now()
		}
		cp.RecomputeReliability()
		s.recomputeReadinessLocked(&cp)
		s.insights[ins.Key] = &cp
		if err := s.persist(); err != nil {
			return nil, err
		}
		s.publish(&cp)
		return &cp, nil
	}

	for _, ev := range ins.Evidence {
		existing.AppendEvidence(ev, s.ringSize)
	}
	if ins.Statement != "" {
		existing.Statement = ins.Statement
	}
	s.recomputeReadinessLocked(existing)
	if err := s.persist(); err != nil {
		return nil, err
	}
	s.publish(existing)
	return existing, nil
}

// Validate increments validations for key, recomputes reliability, and
// appends eventID to the evidence ring.
func (s *Store) Validate(key, eventID string) (*model.Insight, error) {
	return s.mutate(key, eventID, true)
}

// Contradict increments contradictions for key, recomputes reliability,
// and appends eventID to the counter-example ring.
func (s *Store) Contradict(key, eventID string) (*model.Insight, error) {
	return s.mutate(key, eventID, false)
}

func (s *Store) mutate(key, eventID string, validating bool) (*model.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins, ok := s.insights[key]
	if !ok {
		return nil, kaitkerr.Invariant(component, "mutate", errNotFound(key))
	}

	if validating {
		ins.Validations++
		ins.AppendEvidence(eventID, s.ringSize)
	} else {
		ins.Contradictions++
		ins.AppendCounterExample(eventID, s.ringSize)
	}
	ins.RecomputeReliability()
	ins.LastValidatedAt = time.Now()
	s.recomputeReadinessLocked(ins)

	if err := s.persist(); err != nil {
		return nil, err
	}
	s.publish(ins)
	return ins, nil
}

// Demote clears the promoted flag on an insight and returns it so the
// caller (internal/promotion) can append a demotion-log entry with reason.
func (s *Store) Demote(key string) (*model.Insight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins, ok := s.insights[key]
	if !ok {
		return nil, kaitkerr.Invariant(component, "demote", errNotFound(key))
	}
	ins.Promoted = false
	ins.PromotedTo = ""
	if err := s.persist(); err != nil {
		return nil, err
	}
	s.publish(ins)
	return ins, nil
}

// MarkPromoted sets Promoted and PromotedTo after internal/promotion has
// written the insight's line to a guidance file.
func (s *Store) MarkPromoted(key, targetFile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ins, ok := s.insights[key]
	if !ok {
		return kaitkerr.Invariant(component, "mark_promoted", errNotFound(key))
	}
	ins.Promoted = true
	ins.PromotedTo = targetFile
	return s.persist()
}

// Get returns a copy of the insight for key, or false if absent.
func (s *Store) Get(key string) (model.Insight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ins, ok := s.insights[key]
	if !ok {
		return model.Insight{}, false
	}
	return *ins, true
}

// Snapshot returns a read-only copy of every insight, safe for the
// advisory engine's retrieval source to scan without blocking writers.
func (s *Store) Snapshot() []model.Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Insight, 0, len(s.insights))
	for _, ins := range s.insights {
		out = append(out, *ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ByCategory returns a snapshot filtered to the given category.
func (s *Store) ByCategory(cat model.Category) []model.Insight {
	all := s.Snapshot()
	out := make([]model.Insight, 0, len(all))
	for _, ins := range all {
		if ins.Category == cat {
			out = append(out, ins)
		}
	}
	return out
}

// Degraded reports whether the most recent snapshot write or rename
// failed. The failed write is not retried and the store does not switch
// to read-only: the mutation stays in memory, later mutations are still
// accepted, and the next successful persist clears the flag.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// recomputeReadinessLocked updates AdvisoryReadiness, combining
// reliability, log-scaled validation-count saturation, category weight,
// and recency half-life decay. Must be called with the write lock held.
func (s *Store) recomputeReadinessLocked(ins *model.Insight) {
	saturation := math.Log1p(float64(ins.Validations)) / math.Log1p(20)
	if saturation > 1 {
		saturation = 1
	}

	weight := categoryWeight[ins.Category]
	if weight == 0 {
		weight = 0.6
	}

	decay := 1.0
	if !ins.LastValidatedAt.IsZero() && s.halflife > 0 {
		age := time.Since(ins.LastValidatedAt)
		decay = math.Pow(0.5, age.Seconds()/s.halflife.Seconds())
	}

	ins.Confidence = WilsonLowerBound(ins.Validations, ins.Validations+ins.Contradictions)
	ins.AdvisoryReadiness = ins.Reliability * saturation * weight * decay
}

type notFoundError struct{ key string }

func (e *notFoundError) Error() string { return "insight not found: " + e.key }

func errNotFound(key string) error { return &notFoundError{key: key} }
