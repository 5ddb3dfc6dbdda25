package dataset

import "fmt"

// SelectPositional picks the session at a fixed 0-based index in the
// catalog's sorted output (index 1 = second acquisition). Returns
// ErrInsufficientSessions when the catalog yields fewer than index+1
// entries; callers skip the subject and continue.
func SelectPositional(sessions []Session, index int) (Session, error) {
	if index < 0 || len(sessions) <= index {
		return Session{}, fmt.Errorf("dataset: want session %d of %d: %w",
			index+1, len(sessions), ErrInsufficientSessions)
	}
	return sessions[index], nil
}

// SelectByChildCount picks the first session (in sorted order) whose number
// of immediate child directories equals k. First match wins, not best
// match. Returns ErrNoQualifyingSession when no session qualifies.
func SelectByChildCount(sessions []Session, k int) (Session, error) {
	for _, s := range sessions {
		n, err := countChildDirs(s.Path)
		if err != nil {
			return Session{}, err
		}
		if n == k {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("dataset: no session with %d child dirs among %d candidates: %w",
		k, len(sessions), ErrNoQualifyingSession)
}
