package testsupport

import (
	"testing"

	"tend/internal/config"
	"tend/internal/logging"
	"tend/internal/records"
)

// MustOpenStore opens the record store for a test config, failing the test on
// error.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store, err := records.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

// SeedRecords appends the given records to the store, failing the test on
// error.
func SeedRecords(t testing.TB, store *records.Store, recs ...records.Record) {
	t.Helper()

	for _, rec := range recs {
		if err := store.Append(rec); err != nil {
			t.Fatalf("seed record %s: %v", rec.EmailID, err)
		}
	}
}
