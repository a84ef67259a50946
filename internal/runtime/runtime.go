// Package runtime assembles the capability-bundle value every other
// component is constructed from: one zerolog.Logger, one loaded
// *config.Config, and one handle apiece for every store and worker the
// daemon owns. It is grounded on cmd/cortex/main.go's zerolog-redirect
// block (a single zerolog.New(ConsoleWriter{...}).With().Timestamp()
// call feeding every package that takes a zerolog.Logger) and on the
// teacher's overall main()-does-all-the-wiring shape, generalized into a
// reusable constructor so cmd/kaitd and tests can share it.
package runtime

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/kaitd/internal/advisory"
	"github.com/normanking/kaitd/internal/cognitive"
	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/eidos"
	"github.com/normanking/kaitd/internal/eidosstore"
	"github.com/normanking/kaitd/internal/eventbus"
	"github.com/normanking/kaitd/internal/feedback"
	"github.com/normanking/kaitd/internal/ingest"
	"github.com/normanking/kaitd/internal/ingest/auth"
	"github.com/normanking/kaitd/internal/kaitkerr"
	"github.com/normanking/kaitd/internal/logging"
	"github.com/normanking/kaitd/internal/memcapture"
	"github.com/normanking/kaitd/internal/metaralph"
	"github.com/normanking/kaitd/internal/pipeline"
	"github.com/normanking/kaitd/internal/promotion"
	"github.com/normanking/kaitd/internal/queue"
	"github.com/normanking/kaitd/internal/semantic"
)

const component = "runtime"

// EnsureDirectories does not create these; they are literal file paths
// runtime derives from the data root itself.
const (
	tokenFileName         = "kaitd.token"
	feedbackLogName       = "advisor/implicit_feedback.jsonl"
	promotionLogName      = "promotion_log.jsonl"
	decisionLedgerName    = "advisory_decision_ledger.jsonl"
	cognitiveSnapshotName = "cognitive_insights.json"
	roastHistoryName      = "advisor/roast_history.jsonl"
)

// Runtime owns every long-lived handle the daemon needs: stores, the
// event bus, the advisory engine, and the background workers layered on
// top of them. Exactly one Runtime should exist per process.
type Runtime struct {
	Config *config.Config
	Log    zerolog.Logger
	Legacy *logging.Logger // operator-facing console logger, teacher-style

	Bus        *eventbus.Bus
	Queue      *queue.Queue
	Cognitive  *cognitive.Store
	EidosStore *eidosstore.Store
	Eidos      *eidos.Tracker
	Advisory   *advisory.Engine
	Ledger     *advisory.Ledger

	FeedbackTracker *feedback.Tracker
	FeedbackLog     *feedback.Logger
	FeedbackWorker  *feedback.Worker

	PromotionCycle  *promotion.Cycle
	PromotionLog    *promotion.Logger
	PromotionWorker *promotion.Worker

	MemoryCapture *memcapture.Capturer
	QualityGate   *metaralph.Gate

	Scheduler      *pipeline.Scheduler
	PipelineWorker *pipeline.Worker
	Ingest         *ingest.Server
	DebugStream    *eventbus.Observer
	Authenticator  *auth.Authenticator

	logFile *os.File
}

// New loads configuration from path (or the default location when path
// is empty), ensures every data directory exists, and wires every
// component together. The Runtime returned owns open file handles and a
// SQLite connection; call Close to release them even if Start is never
// called.
func New(path string) (*Runtime, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

// NewFromConfig wires a Runtime from an already-loaded Config, useful in
// tests that build a Config pointed at a temp directory.
func NewFromConfig(cfg *config.Config) (*Runtime, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, kaitkerr.Fatal(component, "ensure_directories", err)
	}

	log, logFile, legacy, err := buildLoggers(cfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, Log: log, Legacy: legacy, logFile: logFile}

	rt.Bus = eventbus.New(1000)

	q, err := queue.New(filepath.Join(cfg.DataRoot, "queue"), cfg.Queue.RotateBytes)
	if err != nil {
		return nil, kaitkerr.Fatal(component, "open_queue", err)
	}
	rt.Queue = q

	cogStore, err := cognitive.Open(cognitive.Options{
		Path:                filepath.Join(cfg.DataRoot, cognitiveSnapshotName),
		EvidenceRingSize:    cfg.Cognitive.EvidenceRingSize,
		ReliabilityHalflife: cfg.Cognitive.ReliabilityHalflife,
		Bus:                 rt.Bus,
	})
	if err != nil {
		return nil, kaitkerr.Fatal(component, "open_cognitive_store", err)
	}
	rt.Cognitive = cogStore

	eidosStore, err := eidosstore.Open(cfg.DataRoot, log.With().Str("component", "eidosstore").Logger())
	if err != nil {
		return nil, kaitkerr.Fatal(component, "open_eidos_store", err)
	}
	rt.EidosStore = eidosStore

	rt.Eidos = eidos.New(eidos.Options{
		Store:          eidosStore,
		Bus:            rt.Bus,
		StepTimeout:    cfg.Eidos.StepTimeout,
		SessionTimeout: cfg.Eidos.SessionTimeout,
	})

	rt.Ledger = advisory.NewLedger(filepath.Join(cfg.DataRoot, decisionLedgerName))

	sources := []advisory.Source{
		advisory.NewCognitiveSource(cogStore),
		advisory.NewEidosSource(eidosStore),
	}
	semIndex := semantic.NewIndex()
	var embedder semantic.Embedder
	if cfg.Advisory.Embeddings {
		ollama := semantic.NewOllamaEmbedder(semantic.OllamaConfig{
			Host:  cfg.Advisory.OllamaURL,
			Model: cfg.Advisory.EmbeddingModel,
			Log:   log,
		})
		embedder = ollama
	} else {
		embedder = semantic.NewKeywordEmbedder(semantic.DefaultEmbeddingDim)
	}
	sources = append(sources, advisory.NewSemanticSource(semIndex, embedder))
	packet := advisory.NewPacketSource(cfg.Advisory.AdviceTTL)
	sources = append(sources, packet)

	rt.Advisory = advisory.NewEngine(advisory.EngineOptions{
		Config:  cfg.Advisory,
		Sources: sources,
		Packet:  packet,
		Bus:     rt.Bus,
		Ledger:  rt.Ledger,
		Log:     log.With().Str("component", "advisory").Logger(),
	})

	rt.FeedbackLog = feedback.NewLogger(filepath.Join(cfg.DataRoot, feedbackLogName))
	rt.FeedbackTracker = feedback.New(feedback.Options{
		Cognitive:       cogStore,
		Eidos:           eidosStore,
		Log:             log.With().Str("component", "feedback").Logger(),
		Logger:          rt.FeedbackLog,
		ExposureTimeout: cfg.Feedback.ExposureTimeout,
		ExposureExpiry:  cfg.Feedback.ExposureExpiry,
	})
	rt.FeedbackWorker = feedback.NewWorker(rt.FeedbackTracker, 0)

	rt.PromotionLog = promotion.NewLogger(filepath.Join(cfg.DataRoot, promotionLogName))
	rt.PromotionCycle = promotion.New(promotion.Options{
		Store:     cogStore,
		Promotion: cfg.Promotion,
		Cognitive: cfg.Cognitive,
		Log:       log.With().Str("component", "promotion").Logger(),
		Logger:    rt.PromotionLog,
		NowUnixNs: func() int64 { return time.Now().UnixNano() },
	})
	interval := time.Duration(cfg.Promotion.IntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	rt.PromotionWorker = promotion.NewWorker(rt.PromotionCycle, interval)

	rt.MemoryCapture = memcapture.New(cfg.Memory)

	gate, err := metaralph.New(cfg.MetaRalph, filepath.Join(cfg.DataRoot, roastHistoryName), log.With().Str("component", "metaralph").Logger())
	if err != nil {
		return nil, kaitkerr.Fatal(component, "open_quality_gate", err)
	}
	rt.QualityGate = gate

	rt.Scheduler = pipeline.New(pipeline.Options{
		Queue:    rt.Queue,
		Config:   cfg.Pipeline,
		Memory:   rt.MemoryCapture,
		Quality:  rt.QualityGate,
		Eidos:    rt.Eidos,
		Outcomes: rt.FeedbackTracker,
		Insights: rt.Cognitive,
		Bus:      rt.Bus,
		Log:      log.With().Str("component", "pipeline").Logger(),
		Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	})
	rt.PipelineWorker = pipeline.NewWorker(rt.Scheduler, cfg.Pipeline.CycleInterval)

	token, err := auth.Resolve(cfg.Server.TokenEnvVar, tokenFilePath(cfg))
	if err != nil {
		return nil, err
	}
	authn, err := auth.New(token)
	if err != nil {
		return nil, err
	}
	rt.Authenticator = authn

	if cfg.Server.DebugStream {
		rt.DebugStream = eventbus.NewObserver(rt.Bus, legacy)
	}

	rt.Ingest = ingest.New(ingest.Options{
		Config:       cfg.Server,
		Queue:        rt.Queue,
		Scheduler:    rt.Scheduler,
		Auth:         rt.Authenticator,
		Bus:          rt.Bus,
		DebugStream:  rt.DebugStream,
		ComponentLog: rt.ComponentStatus,
		Log:          log.With().Str("component", "ingest").Logger(),
	})

	return rt, nil
}

func tokenFilePath(cfg *config.Config) string {
	if cfg.Server.TokenFile != "" {
		return cfg.Server.TokenFile
	}
	return filepath.Join(cfg.DataRoot, tokenFileName)
}

// buildLoggers opens the daemon's zerolog sink (a file under
// <data_root>/logs) and constructs the matching operator-facing
// logging.Logger, mirroring cmd/cortex/main.go's split between a
// zerolog file sink for library code and a colored console logger for
// interactive output.
func buildLoggers(cfg *config.Config) (zerolog.Logger, *os.File, *logging.Logger, error) {
	logPath := cfg.Logging.File
	if logPath == "" {
		logPath = filepath.Join(cfg.DataRoot, "logs", "kaitd.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return zerolog.Logger{}, nil, nil, kaitkerr.Fatal(component, "mkdir_log_dir", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, nil, kaitkerr.Fatal(component, "open_log_file", err)
	}

	level := zerologLevel(cfg.Logging.Level)
	zerolog.SetGlobalLevel(level)
	writer := zerolog.ConsoleWriter{Out: f, NoColor: true}
	zlog := zerolog.New(writer).With().Timestamp().Logger()

	legacy := logging.New(&logging.Config{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Colored:   true,
		ShowTime:  true,
		Component: "kaitd",
	})
	logging.SetGlobal(legacy)

	return zlog, f, legacy, nil
}

func zerologLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Start launches every background worker and the ingest HTTP listener.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.FeedbackWorker.Start(ctx)
	rt.PromotionWorker.Start()
	rt.PipelineWorker.Start(ctx)
	if err := rt.Ingest.Start(); err != nil {
		return kaitkerr.Fatal(component, "start_ingest", err)
	}
	rt.Log.Info().Msg("runtime started")
	return nil
}

// Stop shuts every worker and the ingest listener down in reverse order,
// then closes the stores this Runtime opened.
func (rt *Runtime) Stop(ctx context.Context) error {
	var firstErr error
	if err := rt.Ingest.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	rt.PipelineWorker.Stop()
	rt.PromotionWorker.Stop()
	rt.FeedbackWorker.Stop()
	if err := rt.Bus.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := rt.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	rt.Log.Info().Msg("runtime stopped")
	return firstErr
}

// Close releases file handles opened directly by Runtime (the SQLite
// connection and the zerolog log file). It does not stop workers; call
// Stop for a full graceful shutdown.
func (rt *Runtime) Close() error {
	var firstErr error
	if rt.EidosStore != nil {
		if err := rt.EidosStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.logFile != nil {
		if err := rt.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ComponentStatus reports a coarse health string per subsystem, used by
// both the ingest daemon's /status endpoint and the kaitd status CLI.
func (rt *Runtime) ComponentStatus() map[string]string {
	status := map[string]string{
		"queue":     "ok",
		"cognitive": "ok",
		"eidos":     "ok",
		"pipeline":  "ok",
	}
	if rt.Cognitive.Degraded() {
		status["cognitive"] = "degraded"
	}
	if err := rt.EidosStore.Health(context.Background()); err != nil {
		status["eidos"] = "degraded"
	}
	if rt.Scheduler.HardPressure() {
		status["pipeline"] = "hard_pressure"
	}
	return status
}
