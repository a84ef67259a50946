// Package main is the entry point for kaitd, the advisory daemon. It is
// grounded on cmd/cortex/main.go's cobra root-command shape: global
// persistent flags, a default RunE, and a handful of subcommand groups
// added with rootCmd.AddCommand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/normanking/kaitd/internal/config"
	"github.com/normanking/kaitd/internal/ingest/auth"
	"github.com/normanking/kaitd/internal/runtime"
)

var (
	version  = "0.1.0"
	cfgPath  string
	dataRoot string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kaitd",
		Short: "kaitd is the advisory daemon: ingest, pipeline, and advise() in one process",
		Long: `kaitd ingests agent events over a loopback HTTP socket, runs them
through memory capture, the Meta-Ralph quality gate, and episode
tracking, and answers advise() queries against the resulting insight
and episode stores.

Run the daemon:  kaitd serve
Check status:    kaitd status`,
		RunE: runServe,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.kait/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "data root override (default ~/.kait)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kaitd v%s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE:  runServe,
	})

	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if dataRoot != "" {
		os.Setenv("DATA_ROOT", dataRoot)
	}

	rt, err := runtime.New(cfgPath)
	if err != nil {
		return fmt.Errorf("building runtime: %w", err)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		return fmt.Errorf("starting runtime: %w", err)
	}

	<-ctx.Done()
	rt.Log.Info().Msg("shutdown signal received")

	stopCtx, cancel := context.WithTimeout(context.Background(), rt.Config.Server.ShutdownTimeout)
	defer cancel()
	return rt.Stop(stopCtx)
}

type statusResponse struct {
	QueueDepth    int64                      `json:"queue_depth"`
	LastCycleAgeS float64                    `json:"last_cycle_age_s"`
	Components    map[string]componentStatus `json:"components"`
}

type componentStatus struct {
	Status string `json:"status"`
}

// statusCmd queries a running daemon's /status endpoint and prints a
// formatted table, grounded on configCmd()'s "show" subcommand pattern
// (load config, print a short labeled block).
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			token, err := auth.Resolve(cfg.Server.TokenEnvVar, cfg.Server.TokenFile)
			if err != nil {
				return fmt.Errorf("resolving token: %w", err)
			}

			url := fmt.Sprintf("http://%s:%d/status", cfg.Server.Bind, cfg.Server.Port)
			req, err := http.NewRequest(http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("kaitd does not appear to be running: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned %s", resp.Status)
			}

			var status statusResponse
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}

			fmt.Println("kaitd Status")
			fmt.Println("────────────")
			fmt.Printf("Queue Depth:    %d bytes\n", status.QueueDepth)
			fmt.Printf("Last Cycle Age: %.1fs\n", status.LastCycleAgeS)
			for name, c := range status.Components {
				fmt.Printf("%-15s %s\n", name+":", c.Status)
			}
			return nil
		},
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}
