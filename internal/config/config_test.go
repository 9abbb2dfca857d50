package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/golemproject/workerexec/internal/replay"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Oplog.Backend != "bolt" {
		t.Errorf("Oplog.Backend = %q, want bolt", cfg.Oplog.Backend)
	}
	if cfg.Durability.Level() != replay.Smart {
		t.Errorf("default Durability.Level() = %v, want Smart", cfg.Durability.Level())
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		t.Error("RetryPolicy.MaxAttempts should have a nonzero default")
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := []byte(`
oplog:
  backend: postgres
durability:
  persistence_level: nothing
  assume_idempotence: false
postgres:
  dsn: postgres://test@localhost/test
`)
	if err := os.WriteFile(path, yamlContent, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Oplog.Backend != "postgres" {
		t.Errorf("Oplog.Backend = %q, want postgres", cfg.Oplog.Backend)
	}
	if cfg.Durability.AssumeIdempotence {
		t.Error("Durability.AssumeIdempotence should be false after override")
	}
	if cfg.Postgres.DSN != "postgres://test@localhost/test" {
		t.Errorf("Postgres.DSN = %q, unexpected", cfg.Postgres.DSN)
	}
	// Fields not present in the file keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("Redis.Addr = %q, want default preserved", cfg.Redis.Addr)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("GOLEM_OPLOG_BACKEND", "postgres")
	t.Setenv("GOLEM_DURABILITY_ASSUME_IDEMPOTENCE", "false")
	t.Setenv("GOLEM_REDIS_ADDR", "redis.internal:6380")

	LoadFromEnv(cfg)

	if cfg.Oplog.Backend != "postgres" {
		t.Errorf("Oplog.Backend = %q, want postgres", cfg.Oplog.Backend)
	}
	if cfg.Durability.AssumeIdempotence {
		t.Error("Durability.AssumeIdempotence should be false after env override")
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %q, want redis.internal:6380", cfg.Redis.Addr)
	}
}
