// Package ledger tracks which recipients have already been contacted so
// repeated campaign runs never message the same number twice.
//
// Entries are scoped by a key derived from the source file the recipients
// were loaded from (see SourceHash), so the same number can be recontacted
// when it arrives through a different source. Passing a constant scope key
// degrades to global dedup.
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const fileName = "sent.json"

// state is the on-disk shape: scope key -> set of normalized identifiers.
type state struct {
	Scopes      map[string]map[string]bool `json:"scopes"`
	LastUpdated string                     `json:"last_updated,omitempty"`
}

// Ledger is an in-memory set of contacted identifiers backed by a JSON file.
// The whole ledger is loaded at startup and rewritten on every mutation;
// this is not a high-throughput path and the full rewrite keeps recovery
// trivial.
type Ledger struct {
	path   string
	scopes map[string]map[string]bool
	logger *slog.Logger
}

// Open loads the ledger from dir, creating the directory if needed.
// A missing or corrupt backing file yields an empty ledger, never an error:
// losing dedup history is recoverable, refusing to start is not.
func Open(dir string, logger *slog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:   filepath.Join(dir, fileName),
		scopes: make(map[string]map[string]bool),
		logger: logger,
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("ledger file unreadable, starting empty", "path", l.path, "error", err)
		}
		return l, nil
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Warn("ledger file corrupt, starting empty", "path", l.path, "error", err)
		return l, nil
	}
	if st.Scopes != nil {
		l.scopes = st.Scopes
	}

	return l, nil
}

// IsSent reports whether identifier was already contacted under scope.
func (l *Ledger) IsSent(scope, identifier string) bool {
	return l.scopes[scope][identifier]
}

// MarkSent records identifier as contacted under scope and persists the
// ledger. Marking an already-present identifier is a no-op and skips the
// disk write.
func (l *Ledger) MarkSent(scope, identifier string) {
	if l.scopes[scope][identifier] {
		return
	}
	set, ok := l.scopes[scope]
	if !ok {
		set = make(map[string]bool)
		l.scopes[scope] = set
	}
	set[identifier] = true

	if err := l.save(); err != nil {
		// A lost write risks a duplicate resend on a future run.
		l.logger.Error("ledger save failed, duplicate sends possible on next run",
			"path", l.path, "scope", scope, "error", err)
	}
}

// FilterUnsent splits identifiers into the ones not yet contacted under
// scope (input order preserved) and a count of the ones skipped.
func (l *Ledger) FilterUnsent(scope string, identifiers []string) (unsent []string, skipped int) {
	for _, id := range identifiers {
		if l.IsSent(scope, id) {
			skipped++
			continue
		}
		unsent = append(unsent, id)
	}
	return unsent, skipped
}

// Clear removes all entries under scope.
func (l *Ledger) Clear(scope string) error {
	if _, ok := l.scopes[scope]; !ok {
		return nil
	}
	delete(l.scopes, scope)
	return l.save()
}

// ClearAll removes every entry in every scope.
func (l *Ledger) ClearAll() error {
	l.scopes = make(map[string]map[string]bool)
	return l.save()
}

// Count returns the number of contacted identifiers under scope.
func (l *Ledger) Count(scope string) int {
	return len(l.scopes[scope])
}

// CountAll returns the number of contacted identifiers across all scopes.
func (l *Ledger) CountAll() int {
	total := 0
	for _, set := range l.scopes {
		total += len(set)
	}
	return total
}

// exportEntry is one row of an Export dump.
type exportEntry struct {
	Scope       string   `json:"scope"`
	Identifiers []string `json:"identifiers"`
}

// Export writes a human-readable dump of all contacted identifiers to path.
func (l *Ledger) Export(path string) error {
	scopes := make([]string, 0, len(l.scopes))
	for scope := range l.scopes {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	entries := make([]exportEntry, 0, len(scopes))
	for _, scope := range scopes {
		ids := make([]string, 0, len(l.scopes[scope]))
		for id := range l.scopes[scope] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		entries = append(entries, exportEntry{Scope: scope, Identifiers: ids})
	}

	dump := struct {
		ExportedAt string        `json:"exported_at"`
		Total      int           `json:"total"`
		Scopes     []exportEntry `json:"scopes"`
	}{
		ExportedAt: time.Now().Format(time.RFC3339),
		Total:      l.CountAll(),
		Scopes:     entries,
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	return nil
}

func (l *Ledger) save() error {
	st := state{
		Scopes:      l.scopes,
		LastUpdated: time.Now().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(&st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger file: %w", err)
	}
	return nil
}

// SourceHash returns the dedup scope key for a source file: the hex sha256
// of its content. Recipients loaded from byte-identical files share a scope.
func SourceHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash source file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
