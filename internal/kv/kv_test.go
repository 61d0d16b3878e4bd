package kv_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"

	"genqueue/internal/config"
	"genqueue/internal/kv"
)

func exerciseBackend(t *testing.T, backend kv.Backend) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := backend.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := backend.Set(ctx, "alpha", `{"version":1}`); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := backend.Set(ctx, "alpha", `{"version":2}`); err != nil {
		t.Fatalf("Set overwrite failed: %v", err)
	}
	value, ok, err := backend.Get(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if value != `{"version":2}` {
		t.Fatalf("expected overwritten value, got %q", value)
	}
	if err := backend.Delete(ctx, "alpha"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "alpha"); ok {
		t.Fatal("expected key to be deleted")
	}
	if err := backend.Delete(ctx, "never-set"); err != nil {
		t.Fatalf("Delete of missing key should succeed, got %v", err)
	}
}

func TestMemoryBackend(t *testing.T) {
	mem := kv.NewMemory()
	exerciseBackend(t, mem)

	_ = mem.Close()
	if err := mem.Set(context.Background(), "k", "v"); !errors.Is(err, kv.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

func TestSQLiteBackendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := kv.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	exerciseBackend(t, store)

	if err := store.Set(context.Background(), "persist", "yes"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := kv.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	value, ok, err := reopened.Get(context.Background(), "persist")
	if err != nil || !ok || value != "yes" {
		t.Fatalf("expected persisted value, got %q ok=%v err=%v", value, ok, err)
	}

	health, err := reopened.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
	if health.TotalKeys != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected counts: %+v", health)
	}
}

func TestSQLiteRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := kv.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := kv.OpenSQLite(path); !errors.Is(err, kv.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "state")
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.StateDir, "logs")

	cfg.Store.Backend = "memory"
	backend, err := kv.Open(&cfg)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if _, ok := backend.(*kv.Memory); !ok {
		t.Fatalf("expected memory backend, got %T", backend)
	}

	cfg.Store.Backend = "sqlite"
	backend, err = kv.Open(&cfg)
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	if _, err := os.Stat(cfg.StorePath()); err != nil {
		t.Fatalf("expected sqlite file at %s: %v", cfg.StorePath(), err)
	}

	cfg.Store.Backend = "etcd"
	if _, err := kv.Open(&cfg); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("GENQUEUE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("GENQUEUE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	backend := kv.NewRedis(client, "genqueue-test-"+t.Name(), 0)
	t.Cleanup(func() { _ = backend.Close() })
	if err := backend.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseBackend(t, backend)
}
