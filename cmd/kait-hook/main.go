// Package main is kait-hook, the thin shim the agent runtime spawns on
// every pre_tool, post_tool, post_tool_failure, and user_prompt event.
// It reads one JSON event from stdin, fills in any fields the caller
// left blank, and POSTs it to the daemon's /events endpoint, exiting
// non-zero on any failure so the calling agent runtime can decide
// whether a missed event is fatal. Grounded on
// .deferred-features/voice/resemble/webhook_server.go's client-side
// counterpart: a short-timeout http.Client doing one authenticated
// request and mapping its result to a process exit code.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/ingest/auth"
	"github.com/normanking/kaitd/internal/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kait-hook:", err)
		os.Exit(1)
	}
}

func run() error {
	kind := flag.String("kind", "", "event kind override (pre_tool, post_tool, post_tool_failure, user_prompt)")
	cfgPath := flag.String("config", "", "config file path (default ~/.kait/config.yaml)")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	var ev model.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("parsing event: %w", err)
	}
	if *kind != "" {
		ev.Kind = model.EventKind(*kind)
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	if ev.EventID == "" {
		ev.EventID = model.NewEventID()
	}
	if ev.Source == "" {
		ev.Source = "kait-hook"
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, err := auth.Resolve(cfg.Server.TokenEnvVar, cfg.Server.TokenFile)
	if err != nil {
		return fmt.Errorf("resolving token: %w", err)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/events", cfg.Server.Bind, cfg.Server.Port)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: *timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("daemon returned %s: %s", resp.Status, string(respBody))
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
