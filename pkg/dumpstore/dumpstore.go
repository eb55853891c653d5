// Package dumpstore finalizes a completed minidump file into a report
// store directory.
//
// A writer builds a dump into a temporary file so that a crash or write
// failure partway through never leaves a half-written report visible to
// whatever later reads the store (an uploader, an operator script, a
// REPL). Finalize is the last step: it assigns the report a stable id
// and atomically moves the temp file into place.
package dumpstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// Finalize moves the completed dump at tmpPath into destDir, naming it
// after a freshly generated report id. destDir is created if it does
// not exist. On success tmpPath no longer exists; on failure tmpPath is
// left untouched so the caller may retry or inspect it.
func Finalize(tmpPath, destDir string) (reportID string, err error) {
	if tmpPath == "" {
		return "", fmt.Errorf("dumpstore: tmpPath is empty")
	}
	if destDir == "" {
		return "", fmt.Errorf("dumpstore: destDir is empty")
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("dumpstore: create %q: %w", destDir, err)
	}

	id := uuid.NewString()
	dest := filepath.Join(destDir, id+".dmp")

	if err := atomic.ReplaceFile(tmpPath, dest); err != nil {
		return "", fmt.Errorf("dumpstore: finalize %q -> %q: %w", tmpPath, dest, err)
	}

	return id, nil
}

// Path returns the path Finalize would have written reportID to under
// destDir, for callers that already know the id (e.g. an inspector
// resolving a report id back to a file).
func Path(destDir, reportID string) string {
	return filepath.Join(destDir, reportID+".dmp")
}
