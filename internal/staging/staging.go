// Package staging materializes one canonical output directory per selected
// session: fixed artifact filenames, original extensions preserved, lesion
// mask pulled out of its results archive.
//
// Staging is partial by design. Whatever resolved is written; missing
// required kinds are reported on the manifest, and pre-existing unrelated
// files in the destination are left alone.
package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mriqsm/curate/internal/archive"
	"github.com/mriqsm/curate/internal/artifact"
	"github.com/mriqsm/curate/internal/dataset"
)

// DefaultMaskMemberGlob matches the lesion-probability mask member inside
// a results archive (LST-LGA naming).
const DefaultMaskMemberGlob = "*ples_lga*"

// Manifest records what staging resolved for one (subject, session) unit.
type Manifest struct {
	Session dataset.Session

	// Dir is the canonical destination: outputRoot/<subject>/<session>.
	// Computed up front; not created until Write.
	Dir string

	// Artifacts maps each located kind to its source path in the raw tree.
	Artifacts map[artifact.Kind]string

	// ArchivePath is the lesion-mask archive, "" when none was found.
	ArchivePath string

	// MissingRequired lists required kinds the locator could not find.
	// Non-empty means the unit will be incomplete but still stages.
	MissingRequired []artifact.Kind
}

// Complete reports whether every required artifact was resolved.
func (m Manifest) Complete() bool {
	return len(m.MissingRequired) == 0
}

// Resolve locates every artifact for the session and computes the
// destination directory, without touching the output tree.
func Resolve(session dataset.Session, outputRoot string, table artifact.Table, archiveGlob string) (Manifest, error) {
	found, err := artifact.Locate(session.Path, table)
	if err != nil {
		return Manifest{}, err
	}

	archivePath, err := artifact.FindArchive(session.Subject.Path, archiveGlob)
	if err != nil {
		return Manifest{}, err
	}

	var missing []artifact.Kind
	for _, kind := range artifact.Kinds {
		if !kind.Required() {
			continue
		}
		if _, ok := found[kind]; !ok {
			missing = append(missing, kind)
		}
	}

	return Manifest{
		Session:         session,
		Dir:             filepath.Join(outputRoot, session.Subject.ID, session.Name),
		Artifacts:       found,
		ArchivePath:     archivePath,
		MissingRequired: missing,
	}, nil
}

// Write creates the manifest's destination directory (idempotent) and
// copies each resolved artifact to its canonical filename, then extracts
// the lesion mask from the archive when one was found. Returns the staged
// files by kind.
//
// A failed or member-less archive degrades the unit (mask absent) instead
// of failing it; the error is returned alongside the staged set so the
// caller can log it.
func Write(m Manifest, maskMemberGlob string) (map[artifact.Kind]string, error) {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("staging: mkdir %s: %w", m.Dir, err)
	}

	staged := make(map[artifact.Kind]string, len(m.Artifacts))
	for kind, src := range m.Artifacts {
		dest := filepath.Join(m.Dir, artifact.CanonicalName(kind, filepath.Base(src)))
		if err := copyFile(src, dest); err != nil {
			return staged, err
		}
		staged[kind] = dest
	}

	if m.ArchivePath != "" {
		dest, err := archive.Extract(m.ArchivePath, maskMemberGlob, m.Dir, artifact.LesionMask.Stem())
		if err != nil {
			return staged, err
		}
		if dest != "" {
			staged[artifact.LesionMask] = dest
		}
	}

	return staged, nil
}

// copyFile copies src to dest, overwriting dest. No checksum; fidelity is
// assumed from the copy primitive.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("staging: open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("staging: create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("staging: copy %s: %w", dest, err)
	}
	return out.Sync()
}
