// Package store persists self-play output: placement and game summary rows
// as parquet batches, and policy weight checkpoints as JSON.
package store

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is a resumable snapshot of a learning run's policy.
type Checkpoint struct {
	Weights    [4]float64 `json:"weights"`
	Epsilon    float64    `json:"epsilon"`
	Games      int        `json:"games"`
	Placements int        `json:"placements"`
	SavedAt    time.Time  `json:"saved_at"`
}

// SaveCheckpoint writes cp as JSON to a temp file next to path and renames it
// into place.
func SaveCheckpoint(path string, cp Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	if cp.SavedAt.IsZero() {
		cp.SavedAt = time.Now().UTC()
	}
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint. A weight
// vector that is all zero or non-finite is rejected since learning cannot
// resume from it.
func LoadCheckpoint(path string) (Checkpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(b, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}

	var norm float64
	for _, w := range cp.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return Checkpoint{}, fmt.Errorf("checkpoint %s: non-finite weight %v", path, w)
		}
		norm += math.Abs(w)
	}
	if norm == 0 {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: all-zero weights", path)
	}
	if cp.Epsilon < 0 || cp.Epsilon > 1 {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: epsilon %v outside [0,1]", path, cp.Epsilon)
	}
	return cp, nil
}
