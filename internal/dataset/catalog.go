package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSessionPrefix matches acquisition folders named by date
// (e.g. "2023-04-16" or "20230416"). Folders without the prefix are not
// considered sessions at all, so a subject holding only unrecognized
// folder names fails selection explicitly instead of picking garbage.
const DefaultSessionPrefix = "20"

// Catalog enumerates the session directories of one subject. The sequence
// is finite, sorted, and restartable: every Sessions call re-reads the
// directory, so a catalog can be evaluated more than once.
type Catalog struct {
	Subject Subject

	// Prefix is the session-name predicate. Empty means DefaultSessionPrefix.
	Prefix string

	// Less orders session names. Nil means lexicographic ascending, which
	// stands in for chronological order on date-prefixed names. Callers
	// with other naming schemes can substitute a real date comparator
	// without touching selection logic.
	Less func(a, b string) bool
}

// Sessions returns the subject's session directories satisfying the name
// predicate, sorted ascending. Returns ErrNotADirectory when the subject
// path is missing or not a directory.
func (c Catalog) Sessions() ([]Session, error) {
	info, err := os.Stat(c.Subject.Path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("dataset: subject %s: %w", c.Subject.Path, ErrNotADirectory)
	}

	entries, err := os.ReadDir(c.Subject.Path)
	if err != nil {
		return nil, fmt.Errorf("dataset: read subject %s: %w", c.Subject.Path, err)
	}

	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}

	var sessions []Session
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		sessions = append(sessions, Session{
			Subject: c.Subject,
			Name:    entry.Name(),
			Path:    filepath.Join(c.Subject.Path, entry.Name()),
		})
	}

	less := c.Less
	if less == nil {
		less = func(a, b string) bool { return a < b }
	}
	sort.Slice(sessions, func(i, j int) bool { return less(sessions[i].Name, sessions[j].Name) })

	return sessions, nil
}
