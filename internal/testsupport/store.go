package testsupport

import (
	"testing"

	"reeldex/internal/catalog"
	"reeldex/internal/config"
	"reeldex/internal/logging"
	"reeldex/internal/state"
)

// MustOpenState opens a checkpoint store for tests and loads its document.
func MustOpenState(t testing.TB, cfg *config.Config, seriesName string) *state.Store {
	t.Helper()

	store, err := state.Open(cfg.Paths.StateDir, seriesName, logging.NewNop())
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	if _, _, err := store.LoadOrCreate(); err != nil {
		t.Fatalf("state.LoadOrCreate: %v", err)
	}
	return store
}

// MustOpenCatalog opens the search catalog for tests and registers cleanup.
func MustOpenCatalog(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
