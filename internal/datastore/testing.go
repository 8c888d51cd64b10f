package datastore

import (
	"path/filepath"
	"testing"

	"github.com/Quig-Enterprises/groundtruth-studio-sub001/internal/conf"
)

// NewTestStore opens a throwaway SQLite store under the test's temp directory.
// The store is closed automatically when the test finishes.
func NewTestStore(tb testing.TB) Interface {
	tb.Helper()

	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(tb.TempDir(), "test.db")

	store := New(settings)
	if store == nil {
		tb.Fatal("failed to construct test store")
	}
	if err := store.Open(); err != nil {
		tb.Fatalf("failed to open test store: %v", err)
	}
	tb.Cleanup(func() {
		if err := store.Close(); err != nil {
			tb.Logf("closing test store: %v", err)
		}
	})
	return store
}
