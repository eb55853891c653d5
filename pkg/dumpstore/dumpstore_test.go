package dumpstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/dumpstore"
)

func Test_Finalize_MovesFileUnderGeneratedID(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "in-progress.tmp")
	require.NoError(t, os.WriteFile(tmpFile, []byte("minidump bytes"), 0o600))

	destDir := filepath.Join(tmpDir, "reports")

	id, err := dumpstore.Finalize(tmpFile, destDir)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, statErr := os.Stat(tmpFile)
	assert.True(t, os.IsNotExist(statErr), "temp file should be gone after finalize")

	got, err := os.ReadFile(dumpstore.Path(destDir, id))
	require.NoError(t, err)
	assert.Equal(t, "minidump bytes", string(got))
}

func Test_Finalize_CreatesDestDirIfMissing(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "in-progress.tmp")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0o600))

	destDir := filepath.Join(tmpDir, "nested", "reports")

	_, err := dumpstore.Finalize(tmpFile, destDir)
	require.NoError(t, err)

	info, err := os.Stat(destDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func Test_Finalize_RejectsEmptyPaths(t *testing.T) {
	t.Parallel()

	_, err := dumpstore.Finalize("", t.TempDir())
	assert.Error(t, err)

	_, err = dumpstore.Finalize(filepath.Join(t.TempDir(), "x"), "")
	assert.Error(t, err)
}
