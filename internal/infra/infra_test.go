package infra

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruslano69/tdtp-steps/pkg/dispatch"
	"github.com/ruslano69/tdtp-steps/pkg/process"
	"github.com/ruslano69/tdtp-steps/pkg/retry"
	"github.com/ruslano69/tdtp-steps/pkg/steps"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STEPS_ENCRYPTION_KEY", "")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":3100" || cfg.Broker.Type != "memory" || !cfg.Executor.Retry.Enabled {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Catalog.CacheTTL != 10*time.Minute {
		t.Errorf("cache ttl = %v, want 10m", cfg.Catalog.CacheTTL)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Setenv("STEPS_DATABASE_DSN", "file:steps.db")
	t.Setenv("STEPS_ENCRYPTION_KEY", "from-env")

	path := writeFile(t, "stepsrv.yaml", `
server:
  addr: ":8080"
database:
  type: sqlite
catalog:
  protected: [customers]
executor:
  retry:
    enabled: true
    max_attempts: 5
    initial_delay: 10ms
    max_delay: 1s
    backoff: linear
dispatch:
  encryption_key: from-file
broker:
  type: kafka
  brokers: [localhost:9092]
  topic: processes
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "file:steps.db" {
		t.Errorf("dsn = %q, want env value", cfg.Database.DSN)
	}
	if cfg.Dispatch.EncryptionKey != "from-file" {
		t.Errorf("encryption key = %q, want file value", cfg.Dispatch.EncryptionKey)
	}
	if cfg.Executor.Retry.MaxAttempts != 5 || cfg.Executor.Retry.BackoffStrategy != retry.BackoffLinear {
		t.Errorf("retry = %+v", cfg.Executor.Retry)
	}
	if len(cfg.Catalog.Protected) != 1 || cfg.Broker.Topic != "processes" {
		t.Errorf("catalog/broker = %+v / %+v", cfg.Catalog, cfg.Broker)
	}
	// не заданное в файле сохраняет значение по умолчанию
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %v, want default", cfg.Server.ReadTimeout)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [\n"},
		{"bad retry", "executor:\n  retry:\n    enabled: true\n    backoff: random\n"},
		{"bad breaker", "breaker:\n  max_failures: 0\n"},
		{"bad audit level", "audit:\n  level: loud\n"},
		{"bad key service url", "key_service:\n  url: mercury:3000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeFile(t, "c.yaml", tt.content)); err == nil {
				t.Error("LoadConfig() error = nil")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig(missing) error = nil")
	}
}

func TestSetup_Dev(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Catalog.StaticFile = writeFile(t, "catalog.yaml", `
tables:
  - id: t-invoices
    name: invoices
    columns:
      - column_name: amount
        data_type: amount
`)

	inf, err := Setup(ctx, cfg, true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer inf.Close()

	if inf.Audit != nil {
		t.Error("audit must be off by default")
	}
	if cfg.Database.Type != "sqlite" {
		t.Errorf("database type = %q, want sqlite", cfg.Database.Type)
	}
	tables, err := inf.Catalog.ListTables(ctx)
	if err != nil || len(tables) != 1 {
		t.Fatalf("ListTables = %v, %v", tables, err)
	}
	if err := inf.Publisher.Ready(ctx); err != nil {
		t.Errorf("Ready: %v", err)
	}

	p := process.New("dispatch")
	if _, err := p.Add(&steps.DeleteStep{Action: steps.ClearAll, Table: tables[0]}, steps.BuildOptions{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := inf.Publisher.Publish(ctx, p); err != nil {
		t.Errorf("Publish: %v", err)
	}
}

func TestSetup_DevAudit(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Audit.File = filepath.Join(t.TempDir(), "audit.log")
	cfg.Catalog.StaticFile = writeFile(t, "catalog.yaml", `
tables:
  - id: t-ghost
    name: ghost
    columns:
      - column_name: amount
        data_type: amount
`)

	inf, err := Setup(ctx, cfg, true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer inf.Close()
	if inf.Audit == nil {
		t.Fatal("audit appender not configured")
	}

	tables, err := inf.Catalog.ListTables(ctx)
	if err != nil || len(tables) != 1 {
		t.Fatalf("ListTables = %v, %v", tables, err)
	}
	p := process.New("ghost cleanup")
	if _, err := p.Add(&steps.DeleteStep{Action: steps.ClearAll, Table: tables[0]}, steps.BuildOptions{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// the table does not exist, so the run fails and is still audited
	if _, err := inf.Executor.Run(ctx, p); err == nil {
		t.Fatal("Run() error = nil, want missing table")
	}

	data, err := os.ReadFile(cfg.Audit.File)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), p.ID.String()) || !strings.Contains(string(data), `"status":"failure"`) {
		t.Errorf("audit file = %s", data)
	}
}

func TestSetup_DevKeyService(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.KeyService.URL = "local"
	cfg.Catalog.StaticFile = writeFile(t, "catalog.yaml", `
tables:
  - id: t-invoices
    name: invoices
    columns:
      - column_name: amount
        data_type: amount
`)

	inf, err := Setup(ctx, cfg, true)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer inf.Close()
	if cfg.Dispatch.Keys == nil {
		t.Fatal("local key service not wired")
	}

	tables, err := inf.Catalog.ListTables(ctx)
	if err != nil || len(tables) != 1 {
		t.Fatalf("ListTables = %v, %v", tables, err)
	}
	p := process.New("keyed")
	if _, err := p.Add(&steps.DeleteStep{Action: steps.ClearAll, Table: tables[0]}, steps.BuildOptions{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := inf.Publisher.Publish(ctx, p); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var got *process.Process
	consumer := dispatch.NewConsumer(inf.Broker, cfg.Dispatch, func(ctx context.Context, p *process.Process) error {
		got = p
		return nil
	})
	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := consumer.Next(recvCtx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Errorf("consumed %v, want process %s", got, p.ID)
	}
}

func TestSetup_RedisDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	if _, err := Setup(context.Background(), cfg, false); err == nil {
		t.Error("Setup() error = nil, want redis ping failure")
	}
}
