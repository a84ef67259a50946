package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultOllamaURL is the local Ollama API endpoint the daemon talks to
// unless overridden by config.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// DefaultEmbeddingModel is the model requested for embeddings.
const DefaultEmbeddingModel = "nomic-embed-text"

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
// Grounded on the teacher's OllamaEmbedder: availability is cached and
// re-checked on an interval rather than probed on every call, since a
// down Ollama server must not add latency to the advisory engine's
// millisecond-scale budget.
type OllamaEmbedder struct {
	host  string
	model string
	dim   int

	client *http.Client
	log    zerolog.Logger

	checkInterval time.Duration

	mu        sync.RWMutex
	available bool
	lastCheck time.Time
}

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	Host          string
	Model         string
	Timeout       time.Duration
	CheckInterval time.Duration
	Log           zerolog.Logger
}

// NewOllamaEmbedder constructs an OllamaEmbedder and probes availability
// once synchronously so callers can decide whether to fall back to the
// keyword embedder immediately.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}

	e := &OllamaEmbedder{
		host:          cfg.Host,
		model:         cfg.Model,
		dim:           DefaultEmbeddingDim,
		client:        &http.Client{Timeout: cfg.Timeout},
		log:           cfg.Log,
		checkInterval: cfg.CheckInterval,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	e.refreshAvailability(ctx)
	return e
}

// Embed requests an embedding from Ollama.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	if !e.Available() {
		return nil, fmt.Errorf("ollama embedder unavailable")
	}

	body, err := json.Marshal(map[string]any{"model": e.model, "prompt": text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.setAvailable(false)
		e.log.Debug().Err(err).Msg("ollama embed request failed")
		return nil, fmt.Errorf("call ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	out := make(Embedding, len(decoded.Embedding))
	for i, v := range decoded.Embedding {
		out[i] = float32(v)
	}
	if len(out) > 0 {
		e.dim = len(out)
	}
	return out, nil
}

// Dimension returns the embedding width, updated after the first
// successful call since Ollama does not advertise it up front.
func (e *OllamaEmbedder) Dimension() int { return e.dim }

// ModelName returns the configured embedding model.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Available reports whether Ollama responded to the last availability
// check, re-probing if the check interval has elapsed.
func (e *OllamaEmbedder) Available() bool {
	e.mu.RLock()
	available, lastCheck := e.available, e.lastCheck
	e.mu.RUnlock()

	if !available && time.Since(lastCheck) > e.checkInterval {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		e.refreshAvailability(ctx)
		e.mu.RLock()
		available = e.available
		e.mu.RUnlock()
	}
	return available
}

func (e *OllamaEmbedder) refreshAvailability(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.host+"/api/tags", nil)
	if err != nil {
		e.setAvailable(false)
		return
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.setAvailable(false)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		e.setAvailable(false)
		return
	}

	var decoded struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		e.setAvailable(false)
		return
	}
	for _, m := range decoded.Models {
		if m.Name == e.model || strings.HasPrefix(m.Name, e.model+":") {
			e.setAvailable(true)
			return
		}
	}
	e.setAvailable(false)
}

func (e *OllamaEmbedder) setAvailable(v bool) {
	e.mu.Lock()
	e.available = v
	e.lastCheck = time.Now()
	e.mu.Unlock()
}
