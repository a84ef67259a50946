package semantic

import (
	"container/heap"
	"sync"
)

// IndexEntry is one stored vector plus the opaque payload the advisory
// engine attaches (an insight key or distillation ID).
type IndexEntry struct {
	ID        string
	Embedding Embedding
	Payload   any
}

// SearchResult is a single similarity hit, highest score first.
type SearchResult struct {
	ID      string
	Score   float64
	Payload any
}

// Index is an in-memory brute-force cosine-similarity search structure.
// Grounded on the teacher's EmbeddingIndex: same normalize-on-insert,
// min-heap top-K selection shape, generalized from template routing to
// insight/distillation retrieval. Adequate for the thousands-of-insights
// scale this daemon targets; an ANN index is not warranted at that size.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*IndexEntry
	ordered []*IndexEntry
}

// NewIndex constructs an empty Index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]*IndexEntry)}
}

// Upsert inserts or replaces the entry for id, normalizing the embedding.
func (idx *Index) Upsert(id string, embedding Embedding, payload any) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	normalized := embedding.Normalize()
	if existing, ok := idx.entries[id]; ok {
		existing.Embedding = normalized
		existing.Payload = payload
		return
	}
	entry := &IndexEntry{ID: id, Embedding: normalized, Payload: payload}
	idx.entries[id] = entry
	idx.ordered = append(idx.ordered, entry)
}

// Remove deletes the entry for id, reporting whether it existed.
func (idx *Index) Remove(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.entries[id]; !ok {
		return false
	}
	delete(idx.entries, id)
	for i, e := range idx.ordered {
		if e.ID == id {
			idx.ordered = append(idx.ordered[:i], idx.ordered[i+1:]...)
			break
		}
	}
	return true
}

// Size returns the number of indexed entries.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns the k entries most similar to query, highest score
// first, using a min-heap for O(n log k) selection.
func (idx *Index) Search(query Embedding, k int) []SearchResult {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || len(idx.ordered) == 0 {
		return nil
	}

	normalizedQuery := query.Normalize()
	results := make([]SearchResult, 0, len(idx.ordered))
	for _, e := range idx.ordered {
		results = append(results, SearchResult{
			ID:      e.ID,
			Score:   normalizedQuery.CosineSimilarity(e.Embedding),
			Payload: e.Payload,
		})
	}
	return topK(results, k)
}

type resultHeap []SearchResult

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)         { *h = append(*h, x.(SearchResult)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK returns results sorted descending by score, at most k items.
func topK(results []SearchResult, k int) []SearchResult {
	if len(results) <= k {
		out := make([]SearchResult, len(results))
		copy(out, results)
		for i := 0; i < len(out)-1; i++ {
			for j := i + 1; j < len(out); j++ {
				if out[j].Score > out[i].Score {
					out[i], out[j] = out[j], out[i]
				}
			}
		}
		return out
	}

	h := make(resultHeap, k)
	copy(h, results[:k])
	heap.Init(&h)
	for i := k; i < len(results); i++ {
		if results[i].Score > h[0].Score {
			heap.Pop(&h)
			heap.Push(&h, results[i])
		}
	}

	out := make([]SearchResult, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(SearchResult)
	}
	return out
}
