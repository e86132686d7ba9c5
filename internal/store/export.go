package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/plexsim/internal/network"
)

// record is one line of a JSONL export. Exactly one payload field is set.
type record struct {
	Kind     string                `json:"kind"`
	Run      *Run                  `json:"run,omitempty"`
	Family   *network.FamilyInfo   `json:"family,omitempty"`
	Species  *network.SpeciesInfo  `json:"species,omitempty"`
	Reaction *network.ReactionInfo `json:"reaction,omitempty"`
}

// ExportJSONL writes runID as JSON lines: the run, then its families,
// species and reactions.
func (s *NetworkDB) ExportJSONL(ctx context.Context, runID string, w io.Writer) error {
	sum, err := s.Summary(ctx, runID)
	if err != nil {
		return err
	}
	snap, err := s.Snapshot(ctx, sum.Run.ID.String())
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(record{Kind: "run", Run: &sum.Run}); err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}
	for i := range snap.Families {
		if err := enc.Encode(record{Kind: "family", Family: &snap.Families[i]}); err != nil {
			return fmt.Errorf("failed to encode family: %w", err)
		}
	}
	for i := range snap.Species {
		if err := enc.Encode(record{Kind: "species", Species: &snap.Species[i]}); err != nil {
			return fmt.Errorf("failed to encode species: %w", err)
		}
	}
	for i := range snap.Reactions {
		if err := enc.Encode(record{Kind: "reaction", Reaction: &snap.Reactions[i]}); err != nil {
			return fmt.Errorf("failed to encode reaction: %w", err)
		}
	}
	return bw.Flush()
}

// ImportJSONL reads an export written by ExportJSONL and saves it. It
// returns the imported run.
func (s *NetworkDB) ImportJSONL(ctx context.Context, r io.Reader) (*Run, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024) // 1MB max line length

	var run *Run
	var snap network.Snapshot
	lineNum := 0
	for sc.Scan() {
		lineNum++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		switch {
		case rec.Kind == "run" && rec.Run != nil:
			run = rec.Run
		case rec.Kind == "family" && rec.Family != nil:
			snap.Families = append(snap.Families, *rec.Family)
		case rec.Kind == "species" && rec.Species != nil:
			snap.Species = append(snap.Species, *rec.Species)
		case rec.Kind == "reaction" && rec.Reaction != nil:
			snap.Reactions = append(snap.Reactions, *rec.Reaction)
		default:
			return nil, fmt.Errorf("line %d: unknown record kind %q", lineNum, rec.Kind)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("export has no run record")
	}
	if err := s.SaveSnapshot(ctx, *run, snap); err != nil {
		return nil, err
	}
	return run, nil
}
