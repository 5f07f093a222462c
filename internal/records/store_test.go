package records_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tend/internal/records"
)

func newTestStore(t *testing.T) *records.Store {
	t.Helper()
	return records.NewStore(filepath.Join(t.TempDir(), "agent_state"), nil)
}

func sampleRecord(id, conversation string) records.Record {
	rec := records.New(id, conversation, "user@example.com", "subject", "body", time.Date(2026, 8, 14, 8, 0, 0, 0, time.UTC))
	return *rec
}

func TestReadAllMissingFile(t *testing.T) {
	store := newTestStore(t)
	recs, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty store, got %d records", len(recs))
	}
}

func TestWriteAllReadAllRoundTrip(t *testing.T) {
	store := newTestStore(t)
	want := []records.Record{sampleRecord("m1", "c1"), sampleRecord("m2", "c2")}
	if err := store.WriteAll(want); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	got, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 2 || got[0].EmailID != "m1" || got[1].EmailID != "m2" {
		t.Fatalf("unexpected records: %#v", got)
	}
}

func TestWriteAllCreatesBackup(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteAll([]records.Record{sampleRecord("m1", "c1")}); err != nil {
		t.Fatalf("first WriteAll failed: %v", err)
	}
	if err := store.WriteAll([]records.Record{sampleRecord("m1", "c1"), sampleRecord("m2", "c2")}); err != nil {
		t.Fatalf("second WriteAll failed: %v", err)
	}

	backup, err := os.ReadFile(store.Path() + ".backup")
	if err != nil {
		t.Fatalf("backup not created: %v", err)
	}
	if !strings.Contains(string(backup), `"m1"`) || strings.Contains(string(backup), `"m2"`) {
		t.Fatalf("backup should hold the previous generation: %s", backup)
	}
	if count := strings.Count(strings.TrimSpace(string(backup)), "\n") + 1; count != 1 {
		t.Fatalf("expected one line in backup, got %d", count)
	}
}

func TestWriteAllLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteAll([]records.Record{sampleRecord("m1", "c1")}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	store := newTestStore(t)
	if err := store.WriteAll([]records.Record{sampleRecord("m1", "c1")}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	file, err := os.OpenFile(store.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := file.WriteString("{not valid json}\n"); err != nil {
		t.Fatal(err)
	}
	if err := file.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Append(sampleRecord("m2", "c2")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	recs, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 valid records around the corrupt line, got %d", len(recs))
	}
	if store.SkippedLines() != 1 {
		t.Fatalf("expected 1 skipped line, got %d", store.SkippedLines())
	}
}

func TestAppendThenReadAll(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append(sampleRecord("m1", "c1")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(sampleRecord("m2", "c2")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	recs, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
}

func TestUpdateMutatesMatchingRecord(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("m1", "c1")
	if err := store.WriteAll([]records.Record{rec}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	found, err := store.Update("m1", func(r *records.Record) {
		r.Status = records.StatusClassified
		r.Label = records.LabelHelp
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}

	updated, err := store.Find("m1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if updated.Status != records.StatusClassified || updated.Label != records.LabelHelp {
		t.Fatalf("mutation lost: %#v", updated)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Fatal("UpdatedAt must advance on every mutation")
	}
	if updated.AttemptCount != 1 {
		t.Fatalf("status mutation should bump attempt count, got %d", updated.AttemptCount)
	}

	// A mutation that does not change status keeps the attempt count.
	if _, err := store.Update("m1", func(r *records.Record) { r.Reason = "still classified" }); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, _ = store.Find("m1")
	if updated.AttemptCount != 1 {
		t.Fatalf("non-status mutation must not bump attempt count, got %d", updated.AttemptCount)
	}
}

func TestUpdateRejectsBackwardTransition(t *testing.T) {
	store := newTestStore(t)
	rec := sampleRecord("m1", "c1")
	rec.Status = records.StatusCompletedSuccess
	if err := store.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := store.Update("m1", func(r *records.Record) {
		r.Status = records.StatusInProgress
	}); err == nil {
		t.Fatal("expected a forbidden transition to be rejected")
	}

	got, err := store.Find("m1")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if got.Status != records.StatusCompletedSuccess {
		t.Fatalf("rejected mutation must not persist, got status %s", got.Status)
	}
}

func TestUpdateMissingRecordReturnsFalse(t *testing.T) {
	store := newTestStore(t)
	found, err := store.Update("missing", func(r *records.Record) { r.Status = records.StatusFailed })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if found {
		t.Fatal("expected no match")
	}
}

func TestHasConversation(t *testing.T) {
	store := newTestStore(t)
	if err := store.Append(sampleRecord("m1", "c1")); err != nil {
		t.Fatal(err)
	}

	if ok, _ := store.HasConversation("c1"); !ok {
		t.Fatal("expected known conversation to be found")
	}
	if ok, _ := store.HasConversation("c2"); ok {
		t.Fatal("unexpected match for unknown conversation")
	}
	if ok, _ := store.HasConversation(""); ok {
		t.Fatal("empty conversation id must never match")
	}
}

func TestFindStaleUsesUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	fresh := sampleRecord("fresh", "c1")
	fresh.Status = records.StatusInProgress
	fresh.UpdatedAt = time.Now().UTC().Add(-12 * time.Hour)
	stale := sampleRecord("stale", "c2")
	stale.Status = records.StatusInProgress
	stale.UpdatedAt = time.Now().UTC().Add(-26 * time.Hour)
	done := sampleRecord("done", "c3")
	done.Status = records.StatusCompletedSuccess
	done.UpdatedAt = time.Now().UTC().Add(-80 * time.Hour)

	if err := store.WriteAll([]records.Record{fresh, stale, done}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	got, err := store.FindStale(24*time.Hour, func(s records.Status) bool { return s == records.StatusInProgress })
	if err != nil {
		t.Fatalf("FindStale failed: %v", err)
	}
	if len(got) != 1 || got[0].EmailID != "stale" {
		t.Fatalf("expected only the 26h record, got %#v", got)
	}
}

func TestRecoverFromCorruption(t *testing.T) {
	store := newTestStore(t)
	if err := os.WriteFile(store.Path(), []byte("\x00\x01 garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	quarantine, err := store.RecoverFromCorruption()
	if err != nil {
		t.Fatalf("RecoverFromCorruption failed: %v", err)
	}
	if !strings.Contains(quarantine, ".corrupted_") {
		t.Fatalf("quarantine path not timestamped: %q", quarantine)
	}
	if _, err := os.Stat(quarantine); err != nil {
		t.Fatalf("quarantined file missing: %v", err)
	}

	recs, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll after recovery failed: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected fresh empty store, got %d records", len(recs))
	}
	if err := store.Append(sampleRecord("m1", "c1")); err != nil {
		t.Fatalf("store unusable after recovery: %v", err)
	}
}

func TestSummarize(t *testing.T) {
	store := newTestStore(t)
	a := sampleRecord("m1", "c1")
	a.Status = records.StatusCompletedSuccess
	b := sampleRecord("m2", "c2")
	b.Status = records.StatusInProgress
	c := sampleRecord("m3", "c3")
	c.Status = records.StatusInProgress
	if err := store.WriteAll([]records.Record{a, b, c}); err != nil {
		t.Fatal(err)
	}

	summary, err := store.Summarize()
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.Total != 3 {
		t.Fatalf("expected total 3, got %d", summary.Total)
	}
	if summary.Counts[records.StatusInProgress] != 2 || summary.Counts[records.StatusCompletedSuccess] != 1 {
		t.Fatalf("unexpected counts: %#v", summary.Counts)
	}
}
