package metaralph

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
)

// rememberedInsight is one prior quality verdict's token set, kept
// in-memory for dedup comparisons against new candidates.
type rememberedInsight struct {
	key    string
	tokens map[string]struct{}
}

// History is the bounded roast-history file: every verdict Meta-Ralph
// renders is appended, but the file never grows past max entries, the
// oldest being dropped first. It doubles as the in-memory dedup index for
// candidates previously classified quality. Grounded on
// internal/cognitive/store.go's temp-file-plus-rename persistence, since a
// size-capped file needs a full rewrite rather than a plain append.
type History struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []model.Verdict
	quality []rememberedInsight
}

// OpenHistory loads an existing roast-history file, if any, and returns a
// History bounded to max entries.
func OpenHistory(path string, max int) (*History, error) {
	h := &History{path: path, max: max}
	if path == "" {
		return h, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, kaitkerr.Transient(component, "open_roast_history", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var v model.Verdict
		if err := json.Unmarshal(scanner.Bytes(), &v); err != nil {
			continue
		}
		h.entries = append(h.entries, v)
	}
	if len(h.entries) > max && max > 0 {
		h.entries = h.entries[len(h.entries)-max:]
	}
	return h, nil
}

// Remember indexes a candidate's token set for future dedup comparisons.
func (h *History) Remember(key string, tokens map[string]struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.quality = append(h.quality, rememberedInsight{key: key, tokens: tokens})
	if h.max > 0 && len(h.quality) > h.max {
		h.quality = h.quality[len(h.quality)-h.max:]
	}
}

// MostSimilar returns the highest cosine similarity between tokens and
// any previously remembered quality candidate's token set, or 0 if none
// have been remembered yet.
func (h *History) MostSimilar(tokens map[string]struct{}) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	best := 0.0
	for _, r := range h.quality {
		if sim := cosineSimilarity(tokens, r.tokens); sim > best {
			best = sim
		}
	}
	return best
}

// Append records verdict and, once the bound is crossed, rewrites the
// file dropping the oldest entries.
func (h *History) Append(verdict model.Verdict) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, verdict)
	if h.max > 0 && len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
	if h.path == "" {
		return nil
	}
	return h.persistLocked()
}

func (h *History) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return kaitkerr.Transient(component, "mkdir_roast_history", err)
	}
	tmp := h.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return kaitkerr.Transient(component, "create_roast_history_tmp", err)
	}
	w := bufio.NewWriter(f)
	for _, v := range h.entries {
		line, err := json.Marshal(v)
		if err != nil {
			f.Close()
			return kaitkerr.Invariant(component, "marshal_verdict", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			return kaitkerr.Transient(component, "write_roast_history", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return kaitkerr.Transient(component, "flush_roast_history", err)
	}
	if err := f.Close(); err != nil {
		return kaitkerr.Transient(component, "close_roast_history_tmp", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		return kaitkerr.Transient(component, "rename_roast_history", err)
	}
	return nil
}
