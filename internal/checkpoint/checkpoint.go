// Package checkpoint saves and restores simulation state snapshots.
//
// A checkpoint file is a plain JSON header line followed by a gzip
// compressed JSON payload. The header carries a SHA-256 checksum of the
// compressed bytes so a file can be verified without decompressing it.
package checkpoint

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/plexsim/internal/network"
)

// Source is what a checkpoint is taken from.
type Source interface {
	Now() float64
	Volume() float64
	ReactionCount() int64
	Snapshot() network.Snapshot
}

// State is the payload of a checkpoint.
type State struct {
	RunID     uuid.UUID        `json:"run_id"`
	CreatedAt time.Time        `json:"created_at"`
	Time      float64          `json:"time"`
	Volume    float64          `json:"volume"`
	Fired     int64            `json:"fired"`
	Reason    string           `json:"reason,omitempty"`
	Network   network.Snapshot `json:"network"`
}

// Capture takes a state from src. reason records why the checkpoint was
// written, e.g. "timeout".
func Capture(src Source, runID uuid.UUID, reason string) *State {
	return &State{
		RunID:     runID,
		CreatedAt: time.Now().UTC(),
		Time:      src.Now(),
		Volume:    src.Volume(),
		Fired:     src.ReactionCount(),
		Reason:    reason,
		Network:   src.Snapshot(),
	}
}

// GeneratePath returns a timestamped checkpoint filename in dir.
func GeneratePath(dir string, runID uuid.UUID, at time.Time) string {
	ts := at.UTC().Format("20060102-150405.000")
	return filepath.Join(dir, fmt.Sprintf("%s%s-%s%s", filePrefix, ts, runID.String()[:8], fileSuffix))
}
