package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"QUEUE_BACKEND", "STORAGE_BACKEND", "LLM_PROVIDER", "CHUNK_SIZE", "CHUNK_OVERLAP",
	"MAX_RETRIES", "RETRY_BASE_DELAY", "JOB_TIMEOUT", "LOCK_TTL", "GEMINI_API_KEY",
	"S3_BUCKET", "S3_REGION", "CONFIG_FILE", "OLLAMA_GEN_MODEL", "NATS_ACK_WAIT", "LOCK_BUSY_DELAY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := fromSource(source{})
	if cfg.ChunkSize != 4000 || cfg.ChunkOverlap != 500 {
		t.Fatalf("unexpected chunk defaults: %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.MaxRetries != 3 || cfg.RetryBaseDelay != 60*time.Second || cfg.JobTimeout != 600*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg)
	}
	if cfg.LockTTL != 11*time.Minute {
		t.Fatalf("expected lock ttl to cover job timeout, got %s", cfg.LockTTL)
	}
	if cfg.LLMTemperature != 0.3 || cfg.MaxFileSize != 10<<20 {
		t.Fatalf("unexpected llm/upload defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDurationsAcceptSecondsAndGoSyntax(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_BASE_DELAY", "30")
	t.Setenv("JOB_TIMEOUT", "2m")

	cfg := fromSource(source{})
	if cfg.RetryBaseDelay != 30*time.Second || cfg.JobTimeout != 2*time.Minute {
		t.Fatalf("unexpected durations: %s %s", cfg.RetryBaseDelay, cfg.JobTimeout)
	}
	if cfg.LockTTL != 3*time.Minute {
		t.Fatalf("expected derived lock ttl 3m, got %s", cfg.LockTTL)
	}
	if cfg.NATSAckWait != 4*time.Minute {
		t.Fatalf("expected ack wait to outlast the lock, got %s", cfg.NATSAckWait)
	}
}

func TestValidateRejectsAckWaitWithinLockTTL(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUEUE_BACKEND", "nats")
	t.Setenv("JOB_TIMEOUT", "2m")
	t.Setenv("LOCK_TTL", "3m")
	t.Setenv("NATS_ACK_WAIT", "3m")

	err := fromSource(source{}).Validate()
	if err == nil || !strings.Contains(err.Error(), "NATS_ACK_WAIT") {
		t.Fatalf("expected NATS_ACK_WAIT validation error, got %v", err)
	}
}

func TestEnvironmentOverridesOverlay(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 2000\nOLLAMA_GEN_MODEL: mistral\nmax_retries: 5\n"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("MAX_RETRIES", "1")

	overlay, err := loadOverlay(path)
	if err != nil {
		t.Fatalf("loadOverlay() error = %v", err)
	}
	cfg := fromSource(source{overlay: overlay})
	if cfg.ChunkSize != 2000 || cfg.OllamaGenModel != "mistral" {
		t.Fatalf("overlay values not applied: %+v", cfg)
	}
	if cfg.MaxRetries != 1 {
		t.Fatalf("environment must win over overlay, got %d", cfg.MaxRetries)
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("CHUNK_OVERLAP", "5000")

	err := fromSource(source{}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"QUEUE_BACKEND", "GEMINI_API_KEY", "CHUNK_OVERLAP"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestLoadRejectsMissingOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
