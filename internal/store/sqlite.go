package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/plexsim/internal/network"
)

// NetworkDB stores network snapshots of simulation runs in SQLite.
type NetworkDB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*NetworkDB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with a single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &NetworkDB{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *NetworkDB) Path() string { return s.path }

// Close closes the database.
func (s *NetworkDB) Close() error { return s.db.Close() }

// ValidateIntegrity runs SQLite's integrity and foreign key checks.
func (s *NetworkDB) ValidateIntegrity(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ValidateIntegrity(ctx, s.db)
}

// SaveSnapshot records run and its network in one transaction. Saving the
// same run again replaces its rows.
func (s *NetworkDB) SaveSnapshot(ctx context.Context, run Run, snap network.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == uuid.Nil {
		return fmt.Errorf("run ID is required")
	}
	id := run.ID.String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, model, seed, started_at, finished_at, sim_time, volume, fired, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, run.Model, int64(run.Seed), formatTime(run.StartedAt), nullTime(run.FinishedAt),
		run.SimTime, run.Volume, run.Fired, run.Outcome)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, f := range snap.Families {
		mols, err := json.Marshal(f.Mols)
		if err != nil {
			return fmt.Errorf("failed to marshal mols of family %d: %w", f.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO families (run_id, id, paradigm, mols, members) VALUES (?, ?, ?, ?, ?)
		`, id, f.ID, f.Paradigm, string(mols), f.Members); err != nil {
			return fmt.Errorf("failed to insert family %d: %w", f.ID, err)
		}
	}

	for _, sp := range snap.Species {
		states, err := json.Marshal(sp.States)
		if err != nil {
			return fmt.Errorf("failed to marshal states of %s: %w", sp.Tag, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO species (run_id, tag, family, name, states, weight, population, depth, expansion)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, sp.Tag, sp.Family, sp.Name, string(states), sp.Weight, sp.Population, sp.Depth, sp.Expansion); err != nil {
			return fmt.Errorf("failed to insert species %s: %w", sp.Tag, err)
		}
	}

	for _, r := range snap.Reactions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO reactions (run_id, tag, generator, rate) VALUES (?, ?, ?, ?)
		`, id, r.Tag, r.Generator, r.Rate); err != nil {
			return fmt.Errorf("failed to insert reaction %s: %w", r.Tag, err)
		}
		for _, side := range []struct {
			role  string
			terms []network.TermInfo
		}{{"reactant", r.Reactants}, {"product", r.Products}} {
			for i, t := range side.terms {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO reaction_terms (run_id, reaction, role, position, species, mult)
					VALUES (?, ?, ?, ?, ?, ?)
				`, id, r.Tag, side.role, i, t.Species, t.Mult); err != nil {
					return fmt.Errorf("failed to insert %s term of %s: %w", side.role, r.Tag, err)
				}
			}
		}
	}

	return tx.Commit()
}

// Runs returns every recorded run, newest first.
func (s *NetworkDB) Runs(ctx context.Context) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, model, seed, started_at, finished_at, sim_time, volume, fired, outcome
		FROM runs ORDER BY started_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		id, startedAt string
		finishedAt    sql.NullString
		seed          int64
		r             Run
	)
	if err := row.Scan(&id, &r.Model, &seed, &startedAt, &finishedAt,
		&r.SimTime, &r.Volume, &r.Fired, &r.Outcome); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("run %q has a malformed ID: %w", id, err)
	}
	r.ID = parsed
	r.Seed = uint64(seed)
	r.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt.Valid {
		r.FinishedAt, _ = time.Parse(timeLayout, finishedAt.String)
	}
	return &r, nil
}

// resolveRun returns the ID of runID, or of the newest run when runID is
// empty or "latest".
func (s *NetworkDB) resolveRun(ctx context.Context, runID string) (string, error) {
	if runID == "" || runID == "latest" {
		var id string
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM runs ORDER BY started_at DESC, id LIMIT 1`).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrRunNotFound
		}
		if err != nil {
			return "", fmt.Errorf("failed to find latest run: %w", err)
		}
		return id, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n); err != nil {
		return "", fmt.Errorf("failed to look up run: %w", err)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return runID, nil
}

// Summary aggregates the network of runID. An empty runID selects the
// newest run.
func (s *NetworkDB) Summary(ctx context.Context, runID string) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, model, seed, started_at, finished_at, sim_time, volume, fired, outcome
		FROM runs WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	sum := &Summary{Run: *run, Generators: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM families WHERE run_id = ?`, id).Scan(&sum.Families); err != nil {
		return nil, fmt.Errorf("failed to count families: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(population > 0), 0), COALESCE(SUM(population), 0)
		FROM species WHERE run_id = ?
	`, id).Scan(&sum.Species, &sum.Populated, &sum.TotalPopulation); err != nil {
		return nil, fmt.Errorf("failed to count species: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT generator, COUNT(*) FROM reactions WHERE run_id = ? GROUP BY generator
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var gen string
		var n int
		if err := rows.Scan(&gen, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reaction count: %w", err)
		}
		sum.Generators[gen] = n
		sum.Reactions += n
	}
	return sum, rows.Err()
}

// Species lists the species of runID matching f, most populated first.
func (s *NetworkDB) Species(ctx context.Context, runID string, f SpeciesFilter) ([]network.SpeciesInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	where := []string{"run_id = ?"}
	args := []any{id}
	if f.MinPopulation > 0 {
		where = append(where, "population >= ?")
		args = append(args, f.MinPopulation)
	}
	if f.Family != nil {
		where = append(where, "family = ?")
		args = append(args, *f.Family)
	}
	query := `SELECT tag, family, name, states, weight, population, depth, expansion FROM species WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY population DESC, CAST(SUBSTR(tag, 2) AS INTEGER)`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query species: %w", err)
	}
	defer rows.Close()

	var out []network.SpeciesInfo
	for rows.Next() {
		var sp network.SpeciesInfo
		var states string
		if err := rows.Scan(&sp.Tag, &sp.Family, &sp.Name, &states, &sp.Weight,
			&sp.Population, &sp.Depth, &sp.Expansion); err != nil {
			return nil, fmt.Errorf("failed to scan species: %w", err)
		}
		if err := json.Unmarshal([]byte(states), &sp.States); err != nil {
			return nil, fmt.Errorf("corrupt states of %s: %w", sp.Tag, err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// Reactions lists the reactions of runID matching f in creation order.
func (s *NetworkDB) Reactions(ctx context.Context, runID string, f ReactionFilter) ([]network.ReactionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	where := []string{"r.run_id = ?"}
	args := []any{id}
	if f.Generator != "" {
		where = append(where, "r.generator = ?")
		args = append(args, f.Generator)
	}
	if f.Species != "" {
		where = append(where, `EXISTS (SELECT 1 FROM reaction_terms t
			WHERE t.run_id = r.run_id AND t.reaction = r.tag AND t.species = ?)`)
		args = append(args, f.Species)
	}
	query := `SELECT r.tag, r.generator, r.rate FROM reactions r WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY CAST(SUBSTR(r.tag, 2) AS INTEGER)`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reactions: %w", err)
	}

	// Collect reactions first, then close rows before the term queries.
	var out []network.ReactionInfo
	for rows.Next() {
		var r network.ReactionInfo
		if err := rows.Scan(&r.Tag, &r.Generator, &r.Rate); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reaction: %w", err)
		}
		out = append(out, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadTerms(ctx, id, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *NetworkDB) loadTerms(ctx context.Context, runID string, r *network.ReactionInfo) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, species, mult FROM reaction_terms
		WHERE run_id = ? AND reaction = ? ORDER BY role, position
	`, runID, r.Tag)
	if err != nil {
		return fmt.Errorf("failed to query terms of %s: %w", r.Tag, err)
	}
	defer rows.Close()

	for rows.Next() {
		var role string
		var t network.TermInfo
		if err := rows.Scan(&role, &t.Species, &t.Mult); err != nil {
			return fmt.Errorf("failed to scan term of %s: %w", r.Tag, err)
		}
		if role == "reactant" {
			r.Reactants = append(r.Reactants, t)
		} else {
			r.Products = append(r.Products, t)
		}
	}
	return rows.Err()
}

// Snapshot reads back the whole network of runID.
func (s *NetworkDB) Snapshot(ctx context.Context, runID string) (network.Snapshot, error) {
	var snap network.Snapshot

	s.mu.RLock()
	id, err := s.resolveRun(ctx, runID)
	if err != nil {
		s.mu.RUnlock()
		return snap, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, paradigm, mols, members FROM families WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		s.mu.RUnlock()
		return snap, fmt.Errorf("failed to query families: %w", err)
	}
	for rows.Next() {
		var f network.FamilyInfo
		var mols string
		if err := rows.Scan(&f.ID, &f.Paradigm, &mols, &f.Members); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return snap, fmt.Errorf("failed to scan family: %w", err)
		}
		if err := json.Unmarshal([]byte(mols), &f.Mols); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return snap, fmt.Errorf("corrupt mols of family %d: %w", f.ID, err)
		}
		snap.Families = append(snap.Families, f)
	}
	rows.Close()
	s.mu.RUnlock()

	if snap.Species, err = s.Species(ctx, id, SpeciesFilter{}); err != nil {
		return snap, err
	}
	// Species come back by population; the snapshot is in creation order.
	sortByTag(snap.Species)
	if snap.Reactions, err = s.Reactions(ctx, id, ReactionFilter{}); err != nil {
		return snap, err
	}
	return snap, nil
}

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

// tagIndex returns the number of a tag such as "s12", or -1.
func tagIndex(tag string) int {
	n, err := strconv.Atoi(strings.TrimLeft(tag, "sr"))
	if err != nil {
		return -1
	}
	return n
}

func sortByTag(species []network.SpeciesInfo) {
	slices.SortFunc(species, func(a, b network.SpeciesInfo) int {
		return tagIndex(a.Tag) - tagIndex(b.Tag)
	})
}
