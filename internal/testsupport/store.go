package testsupport

import (
	"context"
	"testing"
	"time"

	"genqueue/internal/config"
	"genqueue/internal/kv"
	"genqueue/internal/queue"
)

// MustOpenBackend opens the configured kv backend and registers cleanup.
func MustOpenBackend(t testing.TB, cfg *config.Config) kv.Backend {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	backend, err := kv.Open(cfg)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = backend.Close()
	})
	return backend
}

// NewStore builds a reloaded queue.Store for namespace over backend.
// now may be nil.
func NewStore(t testing.TB, backend kv.Backend, namespace string, now func() time.Time) *queue.Store {
	t.Helper()

	store := queue.New(backend, queue.Options{Namespace: namespace, UserKey: "tester", Now: now})
	store.Reload(context.Background())
	return store
}
