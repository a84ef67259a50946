// Package config provides configuration management for the kaitd advisory daemon.
//
// # Overview
//
// The config package uses Viper to load configuration from a YAML file and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.kait/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// Most configuration values can be overridden using environment variables
// with the KAIT_ prefix and nested fields separated by underscores. A closed
// set of toggles named in the external interface contract are bound under
// their own names regardless of nesting (KAIT_LITE, KAIT_EMBEDDINGS,
// KAIT_ADVISORY_AGREEMENT_GATE, KAIT_ADVISORY_MIN_SOURCES,
// KAIT_PIPELINE_LOW_KEEP_RATE, KAIT_MEMORY_PATCH_MAX_CHARS,
// KAIT_MEMORY_PATCH_MIN_CHARS, KAITD_TOKEN, DATA_ROOT).
//
// # Usage Example
//
//	package main
//
//	import (
//	    "log"
//	    "github.com/normanking/kaitd/internal/config"
//	)
//
//	func main() {
//	    cfg, err := config.Load()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := cfg.EnsureDirectories(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    if err := cfg.Validate(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Printf("listening on %s:%d", cfg.Server.Bind, cfg.Server.Port)
//	}
//
// # Configuration Sections
//
//   - Server: HTTP ingest surface (port, auth token source, body limits)
//   - Queue: append-only event queue rotation/fsync behavior
//   - Pipeline: batch scheduler sizing and backpressure thresholds
//   - Memory: memory-capture scoring thresholds
//   - MetaRalph: quality-gate dedup threshold and roast history bound
//   - Cognitive: insight store promotion/reliability parameters
//   - Eidos: episode/step timeouts and distillation clustering parameters
//   - Advisory: retrieval/fusion/suppression tuning
//   - Feedback: implicit feedback exposure timing
//   - Promotion: promotion interval, demotion threshold, target files
//   - Logging: log level and output file configuration
//
// # Path Expansion
//
// The package automatically expands ~ to the user's home directory in
// all path configurations, making config files portable across systems.
//
// # Thread Safety
//
// Config instances are not thread-safe. The daemon loads its Config once at
// startup and handles no reload signal, so edits to the file take effect on
// the next restart.
package config
