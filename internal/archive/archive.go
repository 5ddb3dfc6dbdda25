// Package archive extracts a single named artifact out of a results zip.
// Results archives hold a derived artifact (e.g. a lesion mask) among
// unrelated files; only members matching a glob are considered, and at most
// one artifact comes out.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mriqsm/curate/internal/artifact"
)

// ErrArchiveOpen reports an archive that could not be opened (missing or
// corrupt). Unit-scoped: the caller degrades the unit, not the run.
var ErrArchiveOpen = errors.New("cannot open archive")

// Extract opens the zip at archivePath and extracts the first member (in
// the archive's internal listing order) whose basename matches memberGlob.
// The member is staged through a scratch directory and then moved to
// destDir under destStem plus the member's own extension, so ".nii" and
// ".nii.gz" round-trip unchanged.
//
// Returns the final path, or "" with a nil error when no member matches:
// absence is an optional-artifact outcome, not a failure. The scratch
// directory is removed on every return path.
func Extract(archivePath, memberGlob, destDir, destStem string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: %s: %w", archivePath, ErrArchiveOpen)
	}
	defer r.Close()

	member := pickMember(r.File, memberGlob)
	if member == nil {
		return "", nil
	}

	scratch, err := os.MkdirTemp("", "curate-extract-*")
	if err != nil {
		return "", fmt.Errorf("archive: scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	tmp := filepath.Join(scratch, filepath.Base(member.Name))
	if err := writeMember(member, tmp); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, destStem+artifact.Ext(filepath.Base(member.Name)))
	if err := move(tmp, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// pickMember returns the first non-directory member whose basename matches
// glob. Further matches are discarded; this ambiguity is documented, not
// an error.
func pickMember(files []*zip.File, glob string) *zip.File {
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		if ok, _ := filepath.Match(glob, filepath.Base(f.Name)); ok {
			return f
		}
	}
	return nil
}

func writeMember(member *zip.File, dest string) error {
	rc, err := member.Open()
	if err != nil {
		return fmt.Errorf("archive: open member %s: %w", member.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("archive: extract %s: %w", member.Name, err)
	}
	return nil
}

// move renames src to dest, falling back to copy+remove when the scratch
// dir is on a different filesystem than the destination.
func move(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("archive: move %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("archive: move to %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("archive: move to %s: %w", dest, err)
	}
	return os.Remove(src)
}
