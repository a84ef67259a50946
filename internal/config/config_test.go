package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}

	if cfg.Server.Bind != "127.0.0.1" {
		t.Errorf("expected loopback bind, got '%s'", cfg.Server.Bind)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}

	if cfg.Pipeline.BatchMax != 1000 {
		t.Errorf("expected batch_max 1000, got %d", cfg.Pipeline.BatchMax)
	}

	if cfg.Cognitive.PromotionReliability != 0.80 {
		t.Errorf("expected promotion_reliability 0.80, got %v", cfg.Cognitive.PromotionReliability)
	}

	if cfg.Promotion.DemotionThreshold != 0.65 {
		t.Errorf("expected demotion_threshold 0.65, got %v", cfg.Promotion.DemotionThreshold)
	}

	if len(cfg.Promotion.TargetFiles) == 0 {
		t.Error("expected default target files to be populated")
	}

	if len(cfg.Advisory.SourceWeights) != 4 {
		t.Errorf("expected 4 default source weights, got %d", len(cfg.Advisory.SourceWeights))
	}
}

func TestLoadFromPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".kait", "config.yaml")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	if cfg.Server.Port != 8787 {
		t.Errorf("expected default port 8787, got %d", cfg.Server.Port)
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}

	if cfg2.Server.Port != cfg.Server.Port {
		t.Error("config values changed on reload")
	}
}

func TestLoadFromPathEnvOverride(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".kait", "config.yaml")

	t.Setenv("KAIT_LITE", "true")
	t.Setenv("KAIT_EMBEDDINGS", "false")
	t.Setenv("KAIT_ADVISORY_MIN_SOURCES", "3")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Server.Lite {
		t.Error("expected KAIT_LITE=true to set server.lite")
	}
	if cfg.Advisory.Embeddings {
		t.Error("expected KAIT_EMBEDDINGS=false to disable embeddings")
	}
	if cfg.Advisory.MinSources != 3 {
		t.Errorf("expected min_sources 3 from env, got %d", cfg.Advisory.MinSources)
	}
}

func TestSaveToPath(t *testing.T) {
	tempDir := t.TempDir()
	cfg := Default()
	cfg.Server.Port = 9999

	path := filepath.Join(tempDir, "config.yaml")
	if err := cfg.SaveToPath(path); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	reloaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}

	if reloaded.Server.Port != 9999 {
		t.Errorf("expected reloaded port 9999, got %d", reloaded.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got: %v", err)
	}

	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid port to fail validation")
	}

	cfg = Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid log level to fail validation")
	}

	cfg = Default()
	cfg.Pipeline.LowKeepRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected out-of-range low_keep_rate to fail validation")
	}
}

func TestEnsureDirectories(t *testing.T) {
	tempDir := t.TempDir()
	cfg := Default()
	cfg.DataRoot = tempDir
	cfg.Logging.File = filepath.Join(tempDir, "logs", "kaitd.log")
	cfg.Eidos.DBPath = filepath.Join(tempDir, "eidos.db")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("failed to ensure directories: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "queue")); err != nil {
		t.Errorf("expected queue directory to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "advisor")); err != nil {
		t.Errorf("expected advisor directory to exist: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := expandPath("~/foo")
	want := filepath.Join(home, "foo")
	if got != want {
		t.Errorf("expandPath(~/foo) = %q, want %q", got, want)
	}

	if expandPath("/abs/path") != "/abs/path" {
		t.Error("expandPath should leave absolute paths unchanged")
	}
}
