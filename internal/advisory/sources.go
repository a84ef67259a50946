package advisory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/semantic"
)

// CognitiveSource retrieves insights by category/tool relevance, ranked
// by AdvisoryReadiness. Grounded on the teacher's router.go pattern of
// scanning a snapshot store and ranking by a precomputed score field.
type CognitiveSource struct {
	store *cognitive.Store
}

// NewCognitiveSource wraps a cognitive.Store as a retrieval Source.
func NewCognitiveSource(store *cognitive.Store) *CognitiveSource {
	return &CognitiveSource{store: store}
}

func (c *CognitiveSource) Name() string { return "cognitive" }

func (c *CognitiveSource) Retrieve(_ context.Context, q Query, k int) ([]Candidate, error) {
	all := c.store.Snapshot()
	scored := make([]Candidate, 0, len(all))
	for _, ins := range all {
		if ins.AdvisoryReadiness <= 0 {
			continue
		}
		score := ins.AdvisoryReadiness
		if matchesTool(ins.Statement, q.Tool) {
			score *= 1.25
		}
		scored = append(scored, Candidate{
			Text:      ins.Statement,
			Source:    c.Name(),
			SourceKey: ins.Key,
			Score:     score,
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return truncate(scored, k), nil
}

// EidosSource retrieves distillations whose triggers match the current
// tool or decision text.
type EidosSource struct {
	store *eidosstore.Store
}

// NewEidosSource wraps an eidosstore.Store as a retrieval Source.
func NewEidosSource(store *eidosstore.Store) *EidosSource {
	return &EidosSource{store: store}
}

func (e *EidosSource) Name() string { return "eidos" }

func (e *EidosSource) Retrieve(ctx context.Context, q Query, k int) ([]Candidate, error) {
	all, err := e.store.AllDistillations(ctx)
	if err != nil {
		return nil, err
	}
	scored := make([]Candidate, 0, len(all))
	for _, d := range all {
		if !triggersMatch(d.Triggers, q.Tool, q.Context) {
			continue
		}
		scored = append(scored, Candidate{
			Text:      d.Statement,
			Source:    e.Name(),
			SourceKey: d.DistillationID,
			Score:     d.Confidence,
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return truncate(scored, k), nil
}

// SemanticSource retrieves insight/distillation statements by cosine
// similarity over an embedding index maintained alongside the cognitive
// and EIDOS stores.
type SemanticSource struct {
	index    *semantic.Index
	embedder semantic.Embedder
}

// NewSemanticSource wraps an Index and the Embedder used to embed the
// query text at call time.
func NewSemanticSource(index *semantic.Index, embedder semantic.Embedder) *SemanticSource {
	return &SemanticSource{index: index, embedder: embedder}
}

func (s *SemanticSource) Name() string { return "semantic" }

func (s *SemanticSource) Retrieve(ctx context.Context, q Query, k int) ([]Candidate, error) {
	if s.embedder == nil || !s.embedder.Available() {
		return nil, nil
	}
	queryText := q.Context
	if queryText == "" {
		queryText = q.Tool
	}
	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}
	hits := s.index.Search(vec, k)
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		text, _ := h.Payload.(string)
		out = append(out, Candidate{
			Text:      text,
			Source:    s.Name(),
			SourceKey: h.ID,
			Score:     h.Score,
		})
	}
	return out, nil
}

// PacketSource serves pre-computed packets keyed by recent tool patterns,
// the fast path used when a live retrieval would blow the time budget.
// Grounded on the teacher's knowledge-cache-by-key pattern (a plain
// RWMutex map of precomputed results with a bounded TTL).
type PacketSource struct {
	mu      sync.RWMutex
	packets map[string]packetEntry
	ttl     time.Duration
}

type packetEntry struct {
	items     []Candidate
	expiresAt time.Time
}

// NewPacketSource constructs an empty PacketSource with the given entry
// TTL (defaults to 10 minutes when zero).
func NewPacketSource(ttl time.Duration) *PacketSource {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PacketSource{packets: make(map[string]packetEntry), ttl: ttl}
}

func (p *PacketSource) Name() string { return "packet" }

// Put precomputes a packet for key (typically a tool name or
// tool+decision-template pair).
func (p *PacketSource) Put(key string, items []Candidate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packets[key] = packetEntry{items: items, expiresAt: time.Now().Add(p.ttl)}
}

func (p *PacketSource) Retrieve(_ context.Context, q Query, k int) ([]Candidate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entry, ok := p.packets[q.Tool]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	return truncate(entry.items, k), nil
}

// ExactHit reports whether a precomputed packet exists for q.Tool and has
// not expired, distinguishing RoutePacketExact from RoutePacketRelaxed.
func (p *PacketSource) ExactHit(q Query) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.packets[q.Tool]
	return ok && time.Now().Before(entry.expiresAt)
}

func matchesTool(statement, tool string) bool {
	if tool == "" {
		return false
	}
	return strings.Contains(strings.ToLower(statement), strings.ToLower(tool))
}

func triggersMatch(triggers []string, tool, context string) bool {
	for _, t := range triggers {
		lt := strings.ToLower(t)
		if tool != "" && lt == strings.ToLower(tool) {
			return true
		}
		if context != "" && strings.Contains(strings.ToLower(context), lt) {
			return true
		}
	}
	return false
}

func truncate(c []Candidate, k int) []Candidate {
	if k <= 0 || len(c) <= k {
		return c
	}
	return c[:k]
}
