package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by Load when no session file exists for the id.
var ErrNotFound = errors.New("session not found")

// Store persists sessions as one JSON file per session so individual
// sessions can be inspected, hand-edited, or deleted without touching the
// others.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Save writes the session to its file.
func (st *Store) Save(s *Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", s.ID, err)
	}
	if err := os.WriteFile(st.path(s.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.ID, err)
	}
	return nil
}

// Load reads a session by id. A missing file yields ErrNotFound; a file
// that exists but cannot be parsed yields a distinct error so callers do
// not mistake corruption for absence.
func (st *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(st.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session %s: %w", id, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session file %s is corrupt: %w", id, err)
	}
	return &s, nil
}

// ListAll returns summaries of every session on disk, newest first.
// Unreadable or corrupt files are skipped with a log line; one bad file
// must not hide the rest.
func (st *Store) ListAll() ([]Summary, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(st.dir, entry.Name()))
		if err != nil {
			st.logger.Warn("skipping unreadable session file", "file", entry.Name(), "error", err)
			continue
		}

		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			st.logger.Warn("skipping corrupt session file", "file", entry.Name(), "error", err)
			continue
		}

		summaries = append(summaries, Summary{
			ID:            s.ID,
			TotalMessages: s.TotalMessages,
			Completed:     s.Completed,
			Successful:    s.Successful,
			Failed:        s.Failed,
			Cancelled:     s.Cancelled,
			StartTime:     s.StartTime,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartTime > summaries[j].StartTime
	})
	return summaries, nil
}

// CleanupOlderThan deletes session files whose modification time is older
// than maxAge. Deletion errors are logged and do not abort the sweep.
func (st *Store) CleanupOlderThan(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			st.logger.Warn("failed to stat session file", "file", entry.Name(), "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(st.dir, entry.Name())); err != nil {
			st.logger.Warn("failed to delete old session file", "file", entry.Name(), "error", err)
			continue
		}
		deleted++
	}

	return deleted, nil
}

func (st *Store) path(id string) string {
	return filepath.Join(st.dir, id+".json")
}
