package staging

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mriqsm/curate/internal/archive"
	"github.com/mriqsm/curate/internal/artifact"
	"github.com/mriqsm/curate/internal/dataset"
)

// fixtureSession builds a raw subject tree with one session holding the
// four modality files, plus an optional results archive, and returns the
// session.
func fixtureSession(t *testing.T, withArchive bool) dataset.Session {
	t.Helper()
	root := t.TempDir()
	subjDir := filepath.Join(root, "P01")
	sessDir := filepath.Join(subjDir, "2023-04")

	files := []string{
		"anat/DICOM_3D_T1_MS-P_20230416120628_23.nii.gz",
		"anat/DICOM_3D_FLAIR_MS-P_20230416120628_25.nii.gz",
		"Magnitude/mag0000.nii.gz",
		"QSM/QSM_VSHARP_ppm.nii.gz",
	}
	for _, f := range files {
		full := filepath.Join(sessDir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(f), 0o644))
	}

	if withArchive {
		resDir := filepath.Join(subjDir, "RESULTS_xnatSpaceMS")
		require.NoError(t, os.MkdirAll(resDir, 0o755))
		zf, err := os.Create(filepath.Join(resDir, "lesions.zip"))
		require.NoError(t, err)
		w := zip.NewWriter(zf)
		mw, err := w.Create("brain_ples_lga_001.nii.gz")
		require.NoError(t, err)
		_, err = mw.Write([]byte("mask"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, zf.Close())
	}

	return dataset.Session{
		Subject: dataset.Subject{ID: "P01", Path: subjDir},
		Name:    "2023-04",
		Path:    sessDir,
	}
}

func TestResolve_CompleteUnit(t *testing.T) {
	sess := fixtureSession(t, true)
	out := t.TempDir()

	m, err := Resolve(sess, out, artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)
	assert.True(t, m.Complete())
	assert.Equal(t, filepath.Join(out, "P01", "2023-04"), m.Dir)
	assert.Len(t, m.Artifacts, 4)
	assert.NotEmpty(t, m.ArchivePath)

	// Resolve must not create the destination.
	assert.NoDirExists(t, m.Dir)
}

func TestResolve_ReportsMissingRequired(t *testing.T) {
	sess := fixtureSession(t, false)
	require.NoError(t, os.Remove(filepath.Join(sess.Path, "QSM", "QSM_VSHARP_ppm.nii.gz")))

	m, err := Resolve(sess, t.TempDir(), artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)
	assert.False(t, m.Complete())
	assert.Equal(t, []artifact.Kind{artifact.QSM}, m.MissingRequired)
}

func TestWrite_CanonicalNames(t *testing.T) {
	sess := fixtureSession(t, true)
	out := t.TempDir()
	m, err := Resolve(sess, out, artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)

	staged, err := Write(m, DefaultMaskMemberGlob)
	require.NoError(t, err)
	require.Len(t, staged, 5)

	for _, name := range []string{"T1.nii.gz", "T2_FLAIR.nii.gz", "mag.nii.gz", "QSM.nii.gz", "lesion_mask.nii.gz"} {
		assert.FileExists(t, filepath.Join(m.Dir, name))
	}
}

func TestWrite_PartialWithoutArchive(t *testing.T) {
	sess := fixtureSession(t, false)
	m, err := Resolve(sess, t.TempDir(), artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)
	assert.Empty(t, m.ArchivePath)

	staged, err := Write(m, DefaultMaskMemberGlob)
	require.NoError(t, err)
	assert.Len(t, staged, 4)
	_, ok := staged[artifact.LesionMask]
	assert.False(t, ok, "absent archive leaves the mask absent, staging still succeeds")
}

func TestWrite_EmptyArchiveDegrades(t *testing.T) {
	sess := fixtureSession(t, true)
	m, err := Resolve(sess, t.TempDir(), artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)

	// A member glob matching nothing yields no mask but no failure either.
	staged, err := Write(m, "*no_such_member*")
	require.NoError(t, err)
	assert.Len(t, staged, 4)
}

func TestWrite_CorruptArchiveReportsStagedSet(t *testing.T) {
	sess := fixtureSession(t, true)
	m, err := Resolve(sess, t.TempDir(), artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.ArchivePath, []byte("junk"), 0o644))

	staged, err := Write(m, DefaultMaskMemberGlob)
	require.ErrorIs(t, err, archive.ErrArchiveOpen)
	assert.Len(t, staged, 4, "the four copies land even when the archive is broken")
}

func TestWrite_Idempotent(t *testing.T) {
	sess := fixtureSession(t, true)
	m, err := Resolve(sess, t.TempDir(), artifact.DefaultTable(), artifact.DefaultArchiveGlob)
	require.NoError(t, err)

	// An unrelated file in the destination survives restaging.
	require.NoError(t, os.MkdirAll(m.Dir, 0o755))
	unrelated := filepath.Join(m.Dir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))

	_, err = Write(m, DefaultMaskMemberGlob)
	require.NoError(t, err)
	_, err = Write(m, DefaultMaskMemberGlob)
	require.NoError(t, err)

	entries, err := os.ReadDir(m.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 6, "five canonical files plus the unrelated one, no duplicates")

	content, err := os.ReadFile(filepath.Join(m.Dir, "T1.nii.gz"))
	require.NoError(t, err)
	assert.Equal(t, "anat/DICOM_3D_T1_MS-P_20230416120628_23.nii.gz", string(content))

	kept, err := os.ReadFile(unrelated)
	require.NoError(t, err)
	assert.Equal(t, "keep", string(kept))
}
