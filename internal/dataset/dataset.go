// Package dataset models the input side of a curation run: subjects found
// under a study root, the imaging sessions inside each subject directory,
// and the selection policies that pick one session per subject.
//
// Everything here is a read-only view over the filesystem. Selection never
// creates or modifies files; all failures are scoped to one subject so the
// caller can skip it and continue.
package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrNotADirectory reports a root path that does not exist or is not a
	// directory. This is a configuration error and aborts the whole run.
	ErrNotADirectory = errors.New("not a directory")

	// ErrInsufficientSessions reports a subject with fewer session folders
	// than a positional selection requires.
	ErrInsufficientSessions = errors.New("insufficient sessions")

	// ErrNoQualifyingSession reports that no session folder satisfied a
	// structural selection rule.
	ErrNoQualifyingSession = errors.New("no qualifying session")
)

// Subject is one participant directory directly under the study root.
type Subject struct {
	ID   string // directory basename, unique within a root
	Path string
}

// Session is one imaging visit: a dated directory inside a subject folder.
type Session struct {
	Subject Subject
	Name    string // directory basename, doubles as the ordering key
	Path    string
}

// Subjects enumerates the immediate child directories of root as subjects,
// sorted by ID ascending. Non-directories are ignored.
func Subjects(root string) ([]Subject, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("dataset: root %s: %w", root, ErrNotADirectory)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("dataset: read root %s: %w", root, err)
	}

	var subjects []Subject
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subjects = append(subjects, Subject{
			ID:   entry.Name(),
			Path: filepath.Join(root, entry.Name()),
		})
	}

	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })
	return subjects, nil
}

// countChildDirs returns the number of immediate child directories of dir.
func countChildDirs(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("dataset: read %s: %w", dir, err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() {
			n++
		}
	}
	return n, nil
}
