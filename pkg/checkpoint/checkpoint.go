// Package checkpoint persists pipeline progress so an interrupted run can
// resume from the last saved chunk instead of restarting. Saves are atomic:
// a reader never observes a partially written checkpoint.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/faultgraph/faultgraph/pkg/types"
)

const (
	checkpointFile = "checkpoint.json"
	statsFile      = "stats.json"
)

// Manager reads and writes checkpoints under a single run directory.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// NewManager creates the run directory if needed. A nil logger discards logs.
func NewManager(dir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", dir, err)
	}
	return &Manager{dir: dir, logger: logger}, nil
}

// Dir returns the run directory the manager writes into.
func (m *Manager) Dir() string { return m.dir }

// Path returns the checkpoint file location.
func (m *Manager) Path() string { return filepath.Join(m.dir, checkpointFile) }

// Save writes the checkpoint atomically: marshal to a temp file in the same
// directory, fsync, then rename over the previous checkpoint.
func (m *Manager) Save(cp *types.Checkpoint) error {
	cp.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	if err := writeAtomic(m.Path(), data); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	m.logger.Info("checkpoint saved",
		"path", m.Path(),
		"processed_chunks", cp.ProcessedChunks,
		"total_chunks", cp.TotalChunks,
		"nodes", len(cp.Graph.Nodes),
		"edges", len(cp.Graph.Edges))
	return nil
}

// Load reads the checkpoint. Returns (nil, false, nil) when none exists.
func (m *Manager) Load() (*types.Checkpoint, bool, error) {
	data, err := os.ReadFile(m.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var cp types.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, fmt.Errorf("failed to decode checkpoint %s: %w", m.Path(), err)
	}
	return &cp, true, nil
}

// Resume loads the checkpoint and reports the next chunk index to process.
// A terminal checkpoint resumes past the end, which the pipeline treats as
// nothing left to do.
func (m *Manager) Resume() (*types.Checkpoint, int, error) {
	cp, ok, err := m.Load()
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, nil
	}
	m.logger.Info("resuming from checkpoint",
		"path", m.Path(),
		"processed_chunks", cp.ProcessedChunks,
		"total_chunks", cp.TotalChunks,
		"saved_at", cp.SavedAt)
	return cp, cp.ProcessedChunks, nil
}

// WriteStats persists the human-readable stats sidecar next to the
// checkpoint. Failures are logged, never fatal.
func (m *Manager) WriteStats(stats types.RunStats) {
	stats.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		m.logger.Warn("failed to marshal run stats", "error", err)
		return
	}
	path := filepath.Join(m.dir, statsFile)
	if err := writeAtomic(path, data); err != nil {
		m.logger.Warn("failed to write run stats", "path", path, "error", err)
	}
}

// writeAtomic writes data to path via a same-directory temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
