package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeZip creates a zip at path holding the given member names, each with
// the member name as content so extraction can be verified byte-for-byte.
func writeZip(t *testing.T, path string, members ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for _, name := range members {
		mw, err := w.Create(name)
		require.NoError(t, err)
		_, err = mw.Write([]byte(name))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtract_ExtensionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")
	writeZip(t, zipPath, "report.txt", "brain_ples_lga_001.nii.gz")

	destDir := filepath.Join(dir, "out")
	dest, err := Extract(zipPath, "*ples_lga*", destDir, "lesion_mask")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "lesion_mask.nii.gz"), dest)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "brain_ples_lga_001.nii.gz", string(content))
}

func TestExtract_PlainNiiKeptPlain(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")
	writeZip(t, zipPath, "ples_lga_mask.nii")

	dest, err := Extract(zipPath, "*ples_lga*", dir, "lesion_mask")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "lesion_mask.nii"), dest, ".nii must not be promoted to .nii.gz")
}

func TestExtract_NoMatchIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")
	writeZip(t, zipPath, "report.txt", "summary.csv")

	dest, err := Extract(zipPath, "*ples_lga*", dir, "lesion_mask")
	require.NoError(t, err)
	assert.Empty(t, dest)
	assert.NoFileExists(t, filepath.Join(dir, "lesion_mask.nii"))
}

func TestExtract_FirstMemberInListingOrder(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")
	writeZip(t, zipPath, "ples_lga_b.nii.gz", "ples_lga_a.nii.gz")

	dest, err := Extract(zipPath, "*ples_lga*", dir, "lesion_mask")
	require.NoError(t, err)

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ples_lga_b.nii.gz", string(content),
		"archive listing order wins, not sorted order")
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(zipPath, []byte("not a zip"), 0o644))

	_, err := Extract(zipPath, "*", dir, "lesion_mask")
	require.ErrorIs(t, err, ErrArchiveOpen)
}

func TestExtract_MissingArchive(t *testing.T) {
	dir := t.TempDir()
	_, err := Extract(filepath.Join(dir, "gone.zip"), "*", dir, "lesion_mask")
	require.ErrorIs(t, err, ErrArchiveOpen)
}

func TestExtract_ScratchRemoved(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "results.zip")
	writeZip(t, zipPath, "ples_lga_mask.nii.gz")

	_, err := Extract(zipPath, "*ples_lga*", dir, "lesion_mask")
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "curate-extract-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "scratch directories must not leak")
}
