// Package handlerconfig loads settings for the crash handler process: the
// registration pipe name, a per-pipe connection timeout, and the
// directory completed reports are finalized into.
//
// The settings file is JSON-with-comments (JSONC), standardized to
// plain JSON via github.com/tailscale/hujson before decoding, the same
// lenient-config approach the rest of this corpus uses for user-facing
// settings files.
package handlerconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// ErrInvalid wraps any error produced while parsing a settings file.
var ErrInvalid = errors.New("handlerconfig: invalid settings file")

// Config holds the handler's runtime settings.
type Config struct {
	// PipeName identifies the registration pipe (e.g. a Windows named
	// pipe path or a platform-appropriate socket name).
	PipeName string `json:"pipe_name"` //nolint:tagliatelle // snake_case config file

	// PipeTimeout bounds how long one pipe instance waits for a client
	// to finish a registration round trip before it is reset.
	PipeTimeout time.Duration `json:"pipe_timeout_ms"` //nolint:tagliatelle

	// ReportDir is where dumpstore.Finalize places completed reports.
	ReportDir string `json:"report_dir"` //nolint:tagliatelle
}

// jsonConfig is the on-disk shape: PipeTimeout round-trips as plain
// milliseconds, not a [time.Duration] string, matching how the rest of
// this corpus's config files prefer plain numbers to custom codecs.
type jsonConfig struct {
	PipeName      string `json:"pipe_name"`
	PipeTimeoutMS int64  `json:"pipe_timeout_ms"`
	ReportDir     string `json:"report_dir"`
}

// defaultPipeName and defaultReportDir are the handler's out-of-the-box
// settings; a real deployment almost always overrides both via the
// settings file.
const (
	defaultPipeName = `\\.\pipe\crashvault_crash_handler`
	defaultReportDir = "crashvault_reports"
)

// Defaults returns the configuration used for any field a settings file
// leaves unset, and the configuration returned by Load when no
// settings file exists at all.
func Defaults() Config {
	return Config{
		PipeName:    defaultPipeName,
		PipeTimeout: 5 * time.Second,
		ReportDir:   defaultReportDir,
	}
}

// Load reads and parses the settings file at path. A missing file is
// not an error: Load returns Defaults(). A present but malformed file
// returns an error wrapping ErrInvalid.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("%w: read %q: %w", ErrInvalid, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %q is not valid JSONC: %w", ErrInvalid, path, err)
	}

	var raw jsonConfig
	if err := json.Unmarshal(standardized, &raw); err != nil {
		return Config{}, fmt.Errorf("%w: %q: %w", ErrInvalid, path, err)
	}

	if raw.PipeName != "" {
		cfg.PipeName = raw.PipeName
	}
	if raw.PipeTimeoutMS > 0 {
		cfg.PipeTimeout = time.Duration(raw.PipeTimeoutMS) * time.Millisecond
	}
	if raw.ReportDir != "" {
		cfg.ReportDir = raw.ReportDir
	}

	return cfg, nil
}
