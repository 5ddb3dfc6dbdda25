package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SubstringTable maps each kind to the basename substring that re-identifies
// it after an external stage has renamed its outputs.
type SubstringTable map[Kind]string

// DefaultSubstrings re-identifies reoriented outputs, which carry a
// "_canonical" infix but keep the modality token from their input name.
func DefaultSubstrings() SubstringTable {
	return SubstringTable{
		T1:         "T1",
		FLAIR:      "FLAIR",
		Magnitude:  "mag",
		QSM:        "QSM",
		LesionMask: "lesion",
	}
}

// Resolve is the rename re-resolution pass: for each kind in the table it
// returns the first file directly inside dir (sorted by name) whose
// basename contains the kind's substring. It is a flat, substring-based
// pass, deliberately distinct from the recursive glob locator, and it
// tolerates absent kinds; callers decide which ones were required.
func Resolve(dir string, table SubstringTable) (map[Kind]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve in %s: %w", dir, err)
	}

	found := make(map[Kind]string)
	for kind, sub := range table {
		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), sub) {
				continue
			}
			found[kind] = filepath.Join(dir, entry.Name())
			break
		}
	}
	return found, nil
}
