package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := NewStore(dir, logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return st, dir
}

func TestSaveAndLoad(t *testing.T) {
	st, _ := setupStore(t)

	s := New(10)
	s.RecordSuccess()
	s.RecordFailure("+15550001111", "network error")

	if err := st.Save(s); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := st.Load(s.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ID != s.ID {
		t.Errorf("ID = %q, want %q", loaded.ID, s.ID)
	}
	if loaded.Completed != 2 || loaded.Successful != 1 || loaded.Failed != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1",
			loaded.Completed, loaded.Successful, loaded.Failed)
	}
	if len(loaded.Errors) != 1 || loaded.Errors[0].Identifier != "+15550001111" {
		t.Errorf("errors = %+v, want one entry for +15550001111", loaded.Errors)
	}
	if err := loaded.CheckInvariants(); err != nil {
		t.Errorf("invariants violated after round trip: %v", err)
	}
}

func TestLoadNotFound(t *testing.T) {
	st, _ := setupStore(t)

	_, err := st.Load("campaign_never_existed")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load of missing session = %v, want ErrNotFound", err)
	}
}

func TestLoadCorruptIsNotNotFound(t *testing.T) {
	st, dir := setupStore(t)

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := st.Load("broken")
	if err == nil {
		t.Fatal("expected error for corrupt session file")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("corrupt file must not be reported as not-found")
	}
}

func TestListAllSkipsCorrupt(t *testing.T) {
	st, dir := setupStore(t)

	good := New(5)
	if err := st.Save(good); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	summaries, err := st.ListAll()
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1 (corrupt file skipped)", len(summaries))
	}
	if summaries[0].ID != good.ID {
		t.Errorf("summary ID = %q, want %q", summaries[0].ID, good.ID)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	st, dir := setupStore(t)

	old := New(1)
	recent := New(1)
	if err := st.Save(old); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(recent); err != nil {
		t.Fatal(err)
	}

	// Age the first file's mtime past the cutoff.
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, old.ID+".json"), past, past); err != nil {
		t.Fatal(err)
	}

	deleted, err := st.CleanupOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if _, err := st.Load(old.ID); !errors.Is(err, ErrNotFound) {
		t.Error("old session should be gone")
	}
	if _, err := st.Load(recent.ID); err != nil {
		t.Errorf("recent session should survive: %v", err)
	}
}

func TestErrorCap(t *testing.T) {
	s := New(200)

	for i := 0; i < 150; i++ {
		s.RecordFailure("+15550001111", "always failing")
	}

	if len(s.Errors) != maxErrorSamples {
		t.Errorf("len(Errors) = %d, want %d", len(s.Errors), maxErrorSamples)
	}
	if s.Failed != 150 {
		t.Errorf("Failed = %d, want 150 (counter keeps counting past the cap)", s.Failed)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}

func TestComputeStats(t *testing.T) {
	s := New(10)
	s.StartTime = time.Now().Add(-10 * time.Second).Unix()
	for i := 0; i < 4; i++ {
		s.RecordSuccess()
	}
	s.RecordFailure("+15550001111", "rejected")

	st := s.ComputeStats(time.Now())
	if st.Completed != 5 {
		t.Errorf("Completed = %d, want 5", st.Completed)
	}
	if st.SuccessRate != 80 {
		t.Errorf("SuccessRate = %v, want 80", st.SuccessRate)
	}
	if st.Progress != 50 {
		t.Errorf("Progress = %v, want 50", st.Progress)
	}
	if st.PerSecond <= 0 {
		t.Error("PerSecond should be positive")
	}
}

func TestComputeStatsTopErrorsMultiByte(t *testing.T) {
	s := New(2)
	// 60 two-byte runes; a byte-offset cut would land mid-rune.
	long := strings.Repeat("é", 60)
	s.RecordFailure("+15550001111", long)
	s.RecordFailure("+15550002222", long)

	st := s.ComputeStats(time.Now())
	if len(st.TopErrors) != 1 {
		t.Fatalf("TopErrors has %d keys, want 1", len(st.TopErrors))
	}
	for key, count := range st.TopErrors {
		if !utf8.ValidString(key) {
			t.Errorf("TopErrors key is not valid UTF-8: %q", key)
		}
		if n := utf8.RuneCountInString(key); n != 50 {
			t.Errorf("TopErrors key has %d runes, want 50", n)
		}
		if count != 2 {
			t.Errorf("count = %d, want 2", count)
		}
	}
}
