package testsupport

import (
	"context"
	"testing"

	"screenclip/internal/config"
	"screenclip/internal/library"
)

// MustOpenLibrary opens a library.Store for tests and registers cleanup.
func MustOpenLibrary(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewTake inserts a raw take for tests using the provided store.
func NewTake(t testing.TB, store *library.Store, rawPath string, rawBytes int64) *library.Take {
	t.Helper()

	take, err := store.CreateTake(context.Background(), &library.Take{RawPath: rawPath, RawBytes: rawBytes})
	if err != nil {
		t.Fatalf("store.CreateTake: %v", err)
	}
	return take
}
