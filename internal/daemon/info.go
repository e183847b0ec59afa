package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Version is the daemon version, overridable at build time with
// -ldflags "-X github.com/crucible-ai/crucible/internal/daemon.Version=...".
var Version = "0.1.0-dev"

// Info is the discovery record a running daemon writes next to its pid
// file so clients can find and describe it.
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// WriteInfoFile atomically writes the daemon info file as JSON.
func WriteInfoFile(path string, info Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal daemon info: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".daemon.json.tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp info file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write daemon info: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set info file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp info file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename info file: %w", err)
	}
	return nil
}

// ReadInfoFile reads the daemon info file written by WriteInfoFile.
func ReadInfoFile(path string) (Info, error) {
	var info Info
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("invalid daemon info file: %w", err)
	}
	return info, nil
}
