package store

import (
	"context"
	"fmt"
)

// Issue describes an inconsistency in a stored network.
type Issue struct {
	Entity string `json:"entity"` // species or reaction tag, or family ID
	Field  string `json:"field"`
	Ref    string `json:"ref,omitempty"`
	Issue  string `json:"issue"` // "no-reactants", "negative-population", "member-count", "bad-multiplicity"
}

func (i Issue) String() string {
	if i.Ref == "" {
		return fmt.Sprintf("%s: %s in %s", i.Issue, i.Entity, i.Field)
	}
	return fmt.Sprintf("%s: %s in %s references %s", i.Issue, i.Entity, i.Field, i.Ref)
}

// ValidateNetwork checks the stored network of runID for states the
// simulator never produces:
//   - reactions without reactants
//   - negative populations
//   - family member counts that disagree with the species table
//   - reaction terms with a multiplicity below one
func (s *NetworkDB) ValidateNetwork(ctx context.Context, runID string) ([]Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.resolveRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, check := range []struct {
		query string
		build func(entity, ref string) Issue
	}{
		{
			`SELECT r.tag, '' FROM reactions r WHERE r.run_id = ?1 AND NOT EXISTS (
				SELECT 1 FROM reaction_terms t WHERE t.run_id = r.run_id AND t.reaction = r.tag AND t.role = 'reactant')
			 ORDER BY r.rowid`,
			func(e, _ string) Issue { return Issue{Entity: e, Field: "reactants", Issue: "no-reactants"} },
		},
		{
			`SELECT tag, CAST(population AS TEXT) FROM species WHERE run_id = ?1 AND population < 0 ORDER BY rowid`,
			func(e, ref string) Issue {
				return Issue{Entity: e, Field: "population", Ref: ref, Issue: "negative-population"}
			},
		},
		{
			`SELECT CAST(f.id AS TEXT), CAST(COUNT(sp.tag) AS TEXT) FROM families f
			 LEFT JOIN species sp ON sp.run_id = f.run_id AND sp.family = f.id
			 WHERE f.run_id = ?1 GROUP BY f.id HAVING COUNT(sp.tag) != f.members ORDER BY f.id`,
			func(e, ref string) Issue {
				return Issue{Entity: "family " + e, Field: "members", Ref: ref, Issue: "member-count"}
			},
		},
		{
			`SELECT reaction, species FROM reaction_terms WHERE run_id = ?1 AND mult < 1 ORDER BY rowid`,
			func(e, ref string) Issue { return Issue{Entity: e, Field: "terms", Ref: ref, Issue: "bad-multiplicity"} },
		},
	} {
		found, err := s.collectIssues(ctx, check.query, id, check.build)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	}
	return issues, nil
}

func (s *NetworkDB) collectIssues(ctx context.Context, query, runID string, build func(entity, ref string) Issue) ([]Issue, error) {
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to run validation query: %w", err)
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var entity, ref string
		if err := rows.Scan(&entity, &ref); err != nil {
			return nil, fmt.Errorf("failed to scan validation row: %w", err)
		}
		issues = append(issues, build(entity, ref))
	}
	return issues, rows.Err()
}
