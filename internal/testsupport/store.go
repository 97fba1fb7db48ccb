package testsupport

import (
	"context"
	"testing"

	"podium/internal/catalog"
	"podium/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewEnsemble creates an ensemble for tests using the provided store.
func NewEnsemble(t testing.TB, store *catalog.Store, name string) *catalog.Ensemble {
	t.Helper()

	ensemble, err := store.CreateEnsemble(context.Background(), name)
	if err != nil {
		t.Fatalf("store.CreateEnsemble: %v", err)
	}
	return ensemble
}

// NewArrangement creates an arrangement for tests using the provided store.
func NewArrangement(t testing.TB, store *catalog.Store, ensembleID int64, title string) *catalog.Arrangement {
	t.Helper()

	arrangement, err := store.CreateArrangement(context.Background(), ensembleID, title)
	if err != nil {
		t.Fatalf("store.CreateArrangement: %v", err)
	}
	return arrangement
}

// NewVersion appends a version for tests using the provided store.
func NewVersion(t testing.TB, store *catalog.Store, arrangementID int64, fileName string, bump catalog.Bump) *catalog.Version {
	t.Helper()

	version, err := store.AppendVersion(context.Background(), arrangementID, fileName, bump)
	if err != nil {
		t.Fatalf("store.AppendVersion: %v", err)
	}
	return version
}
