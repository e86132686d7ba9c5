// Package store persists reaction networks in a SQLite database so they
// can be inspected after a run.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/plexsim/internal/network"
)

// ErrRunNotFound is returned when a run ID is not in the database.
var ErrRunNotFound = errors.New("run not found")

// Run describes one simulation run.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Model      string    `json:"model"`
	Seed       uint64    `json:"seed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	SimTime    float64   `json:"sim_time"`
	Volume     float64   `json:"volume"`
	Fired      int64     `json:"fired"`
	// Outcome is "stopped", "timeout", "exhausted", "cancelled" or "error".
	Outcome string `json:"outcome"`
}

// Summary aggregates one run's network.
type Summary struct {
	Run             Run            `json:"run"`
	Families        int            `json:"families"`
	Species         int            `json:"species"`
	Reactions       int            `json:"reactions"`
	Populated       int            `json:"populated"`
	TotalPopulation int64          `json:"total_population"`
	Generators      map[string]int `json:"generators"`
}

// SpeciesFilter narrows a species query. Zero values match everything.
type SpeciesFilter struct {
	MinPopulation int64
	Family        *int
	Limit         int
}

// ReactionFilter narrows a reaction query. Species matches reactions with
// the tagged species on either side.
type ReactionFilter struct {
	Generator string
	Species   string
	Limit     int
}

// Network is the read side of a network database.
type Network interface {
	Runs(ctx context.Context) ([]Run, error)
	Summary(ctx context.Context, runID string) (*Summary, error)
	Species(ctx context.Context, runID string, f SpeciesFilter) ([]network.SpeciesInfo, error)
	Reactions(ctx context.Context, runID string, f ReactionFilter) ([]network.ReactionInfo, error)
	Snapshot(ctx context.Context, runID string) (network.Snapshot, error)
	ValidateNetwork(ctx context.Context, runID string) ([]Issue, error)
}

var _ Network = (*NetworkDB)(nil)
