// Package ingest implements the loopback HTTP daemon that accepts
// events from the hook shim, scores and queues them, and reports daemon
// health/status. It is grounded on
// .deferred-features/voice/resemble/webhook_server.go's WebhookServer:
// a struct holding host/port/auth state and an *http.Server built in
// Start(), bearer-auth applied via a withMiddleware wrapper,
// and a context-timeout Shutdown in Stop().
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/ingest/auth"
	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/model"
	"github.com/normanking/kaitd/internal/pipeline"
	"github.com/normanking/kaitd/internal/queue"
	"github.com/normanking/kaitd/internal/scoring"
)

const component = "ingest"

// Pressure is the subset of the pipeline scheduler the daemon needs: the
// current status snapshot and whether to start shedding load.
type Pressure interface {
	Status() pipeline.Status
	HardPressure() bool
}

// Options configures a Server.
type Options struct {
	Config        config.ServerConfig
	Queue         *queue.Queue
	Scheduler     Pressure
	Auth          *auth.Authenticator
	Bus           *eventbus.Bus
	DebugStream   http.Handler // optional GET /debug/stream handler, e.g. an *eventbus.Observer
	ComponentLog  func() map[string]string
	Log           zerolog.Logger
	Now           func() time.Time
}

// Server is the ingest daemon's HTTP surface.
type Server struct {
	cfg       config.ServerConfig
	queue     *queue.Queue
	scheduler Pressure
	authn     *auth.Authenticator
	bus       *eventbus.Bus
	debug     http.Handler
	components func() map[string]string
	log       zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// New constructs a Server from Options.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1"
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	components := opts.ComponentLog
	if components == nil {
		components = func() map[string]string { return map[string]string{} }
	}
	return &Server{
		cfg:        cfg,
		queue:      opts.Queue,
		scheduler:  opts.Scheduler,
		authn:      opts.Auth,
		bus:        opts.Bus,
		debug:      opts.DebugStream,
		components: components,
		log:        opts.Log,
		now:        now,
	}
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return kaitkerr.Invariant(component, "start", fmt.Errorf("already running"))
	}
	s.running = true

	mux := http.NewServeMux()
	mux.HandleFunc("POST /events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	if s.cfg.DebugStream && s.debug != nil {
		mux.Handle("GET /debug/stream", s.debug)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.mu.Unlock()

	s.log.Info().Str("addr", addr).Msg("ingest daemon listening")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("ingest listener failed")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting up to ShutdownTimeout.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	server := s.server
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// withMiddleware applies bearer-token auth (if configured) to every
// route except the liveness probe.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		if r.URL.Path != "/health" && s.authn != nil && !s.authn.Check(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Dur("elapsed", s.now().Sub(start)).Msg("request")
	})
}

type acceptedResponse struct {
	Accepted int `json:"accepted"`
}

// handleEvents parses one JSON event or an NDJSON batch and appends each
// to the queue, scoring importance and deriving priority at ingest time.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.scheduler != nil && s.scheduler.HardPressure() {
		http.Error(w, "queue under hard pressure", http.StatusTooManyRequests)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes+1)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	events, err := parseEvents(body)
	if err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if len(events) == 0 {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	now := s.now()
	for i := range events {
		ev := &events[i]
		if !ev.Kind.Valid() {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		ev.Stamp(now)
		ev.Importance = scoring.ScoreImportance(*ev)
		priority := model.DerivePriority(*ev, scoring.HasMemoryMarker(ev.Text))
		if err := s.queue.Append(model.QueueEntry{Event: *ev, Priority: priority}); err != nil {
			s.log.Warn().Err(err).Str("event", ev.EventID).Msg("queue append failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(acceptedResponse{Accepted: len(events)})
}

// parseEvents accepts either one JSON object or newline-delimited JSON
// objects, one per line.
func parseEvents(body []byte) ([]model.Event, error) {
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	events := make([]model.Event, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev model.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, kaitkerr.BadInput(component, "parse_event", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

type componentStatus struct {
	Status string `json:"status"`
}

type statusResponse struct {
	QueueDepth    int64                      `json:"queue_depth"`
	LastCycleAgeS float64                    `json:"last_cycle_age_s"`
	Components    map[string]componentStatus `json:"components"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Components: map[string]componentStatus{}}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.QueueDepth = st.QueueDepth
		resp.LastCycleAgeS = st.LastCycleAgeS
	}
	for name, status := range s.components() {
		resp.Components[name] = componentStatus{Status: status}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
