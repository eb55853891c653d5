package handlerconfig_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crashvault/minidump/pkg/handlerconfig"
)

func Test_Load_MissingFile_ReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := handlerconfig.Load(filepath.Join(t.TempDir(), "nope.jsonc"))
	require.NoError(t, err)
	assert.Equal(t, handlerconfig.Defaults(), cfg)
}

func Test_Load_ParsesJSONCWithComments(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.jsonc")
	content := `{
		// registration pipe name
		"pipe_name": "\\\\.\\pipe\\test_handler",
		"pipe_timeout_ms": 2500,
		"report_dir": "/var/crashvault/reports",
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := handlerconfig.Load(path)
	require.NoError(t, err)
	assert.Equal(t, `\\.\pipe\test_handler`, cfg.PipeName)
	assert.Equal(t, 2500*time.Millisecond, cfg.PipeTimeout)
	assert.Equal(t, "/var/crashvault/reports", cfg.ReportDir)
}

func Test_Load_PartialFile_FillsRemainingFromDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{"report_dir": "/tmp/reports"}`), 0o600))

	cfg, err := handlerconfig.Load(path)
	require.NoError(t, err)

	defaults := handlerconfig.Defaults()
	assert.Equal(t, defaults.PipeName, cfg.PipeName)
	assert.Equal(t, defaults.PipeTimeout, cfg.PipeTimeout)
	assert.Equal(t, "/tmp/reports", cfg.ReportDir)
}

func Test_Load_MalformedFile_ReturnsErrInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := handlerconfig.Load(path)
	assert.ErrorIs(t, err, handlerconfig.ErrInvalid)
}
