package artifact

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Table maps each artifact kind to the basename glob that identifies it in
// raw session directories. Matching is case-sensitive; there is no content
// inspection.
type Table map[Kind]string

// DefaultTable matches the scanner's export naming observed in practice
// (e.g. "DICOM_3D_T1_MS-P_..." and "QSM_VSHARP_ppm.nii.gz").
func DefaultTable() Table {
	return Table{
		T1:        "*T1*",
		FLAIR:     "*FLAIR*",
		Magnitude: "*mag*",
		QSM:       "*QSM*",
	}
}

// DefaultArchiveGlob identifies lesion-mask archives: any zip under a
// RESULTS directory.
const DefaultArchiveGlob = "*RESULTS*/*.zip"

// Locate walks the session directory recursively and returns, per kind in
// the table, the first regular file (in sorted walk order) whose basename
// matches the kind's glob. Absent kinds are simply missing from the map.
// First-in-sorted-order on multiple matches is a tie-break policy, not a
// quality judgment.
func Locate(dir string, table Table) (map[Kind]string, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	found := make(map[Kind]string)
	for kind, glob := range table {
		for _, path := range files {
			ok, err := filepath.Match(glob, filepath.Base(path))
			if err != nil {
				return nil, fmt.Errorf("artifact: bad glob %q for %s: %w", glob, kind, err)
			}
			if ok {
				found[kind] = path
				break
			}
		}
	}
	return found, nil
}

// FindArchive returns the first path under dir whose directory component
// and basename match the two segments of pathGlob ("dirpattern/namepattern"),
// or "" when none matches. The glob's directory segment is matched against
// every ancestor directory name below dir, so archives nested deeper than
// one level are still found.
func FindArchive(dir, pathGlob string) (string, error) {
	dirGlob, nameGlob := filepath.Split(pathGlob)
	dirGlob = strings.TrimSuffix(dirGlob, string(filepath.Separator))

	files, err := listFiles(dir)
	if err != nil {
		return "", err
	}

	for _, path := range files {
		ok, err := filepath.Match(nameGlob, filepath.Base(path))
		if err != nil {
			return "", fmt.Errorf("artifact: bad archive glob %q: %w", pathGlob, err)
		}
		if !ok {
			continue
		}
		if dirGlob == "" || matchesAncestor(dir, path, dirGlob) {
			return path, nil
		}
	}
	return "", nil
}

// matchesAncestor reports whether any directory on the path from root to
// file matches glob.
func matchesAncestor(root, file, glob string) bool {
	rel, err := filepath.Rel(root, filepath.Dir(file))
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if ok, _ := filepath.Match(glob, part); ok {
			return true
		}
	}
	return false
}

// listFiles returns every regular file under dir, sorted by full path so
// tie-breaking is reproducible.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
