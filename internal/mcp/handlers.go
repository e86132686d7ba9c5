package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/plexsim/internal/checkpoint"
	"github.com/nvandessel/plexsim/internal/pathutil"
	"github.com/nvandessel/plexsim/internal/sanitize"
	"github.com/nvandessel/plexsim/internal/store"
	"github.com/nvandessel/plexsim/internal/visualization"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	runsURI      = "plexsim://runs"
)

// registerTools registers the network inspection tools.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "network_runs",
		Description: "List stored simulation runs, newest first",
	}, s.handleListRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "network_summary",
		Description: "Summarize a run's reaction network: families, species, reactions and populations",
	}, s.handleSummary)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "list_species",
		Description: "List species of a run, most populated first, optionally filtered by population or family",
	}, s.handleListSpecies)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "list_reactions",
		Description: "List reactions of a run, optionally filtered by generating rule or participating species",
	}, s.handleListReactions)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "network_validate",
		Description: "Check a stored network for consistency issues",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "network_graph",
		Description: "Render a run's reaction network in DOT (Graphviz) or JSON format",
	}, s.handleGraph)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "checkpoint_list",
		Description: "List checkpoints written by runs that timed out or ran out of events, newest first",
	}, s.handleCheckpointList)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "checkpoint_inspect",
		Description: "Verify a checkpoint and summarize the network it holds",
	}, s.handleCheckpointInspect)
}

// registerResources registers the run index resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         runsURI,
		Name:        "plexsim-runs",
		Description: "Stored simulation runs with their network sizes.",
		MIMEType:    "text/markdown",
	}, s.handleRunsResource)
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultLimit
	case n > maxLimit:
		return maxLimit
	default:
		return n
	}
}

func (s *Server) handleListRuns(ctx context.Context, _ *sdk.CallToolRequest, _ ListRunsInput) (_ *sdk.CallToolResult, _ ListRunsOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("network_runs", start, retErr, nil) }()

	if err := s.limiters.Check("network_runs"); err != nil {
		return nil, ListRunsOutput{}, err
	}

	runs, err := s.store.Runs(ctx)
	if err != nil {
		return nil, ListRunsOutput{}, fmt.Errorf("listing runs: %w", err)
	}
	out := ListRunsOutput{Runs: make([]RunInfo, len(runs)), Count: len(runs)}
	for i, r := range runs {
		out.Runs[i] = runInfo(r)
	}
	return nil, out, nil
}

func (s *Server) handleSummary(ctx context.Context, _ *sdk.CallToolRequest, args SummaryInput) (_ *sdk.CallToolResult, _ SummaryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("network_summary", start, retErr, auditParams(map[string]any{"run": args.Run}))
	}()

	if err := s.limiters.Check("network_summary"); err != nil {
		return nil, SummaryOutput{}, err
	}

	sum, err := s.store.Summary(ctx, args.Run)
	if err != nil {
		return nil, SummaryOutput{}, err
	}
	return nil, SummaryOutput{
		Run:             runInfo(sum.Run),
		Families:        sum.Families,
		Species:         sum.Species,
		Reactions:       sum.Reactions,
		Populated:       sum.Populated,
		TotalPopulation: sum.TotalPopulation,
		Generators:      sanitizeKeys(sum.Generators),
	}, nil
}

func (s *Server) handleListSpecies(ctx context.Context, _ *sdk.CallToolRequest, args ListSpeciesInput) (_ *sdk.CallToolResult, _ ListSpeciesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("list_species", start, retErr, auditParams(map[string]any{
			"run":            args.Run,
			"min_population": args.MinPopulation,
			"family":         args.Family,
			"limit":          args.Limit,
		}))
	}()

	if err := s.limiters.Check("list_species"); err != nil {
		return nil, ListSpeciesOutput{}, err
	}

	if args.MinPopulation < 0 {
		return nil, ListSpeciesOutput{}, fmt.Errorf("min_population %d is negative", args.MinPopulation)
	}
	species, err := s.store.Species(ctx, args.Run, store.SpeciesFilter{
		MinPopulation: args.MinPopulation,
		Family:        args.Family,
		Limit:         clampLimit(args.Limit),
	})
	if err != nil {
		return nil, ListSpeciesOutput{}, err
	}
	for i := range species {
		species[i].Name = sanitize.Label(species[i].Name)
		for j, st := range species[i].States {
			species[i].States[j] = sanitize.Label(st)
		}
	}
	return nil, ListSpeciesOutput{Species: species, Count: len(species)}, nil
}

func (s *Server) handleListReactions(ctx context.Context, _ *sdk.CallToolRequest, args ListReactionsInput) (_ *sdk.CallToolResult, _ ListReactionsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("list_reactions", start, retErr, auditParams(map[string]any{
			"run":       args.Run,
			"generator": args.Generator,
			"species":   args.Species,
			"limit":     args.Limit,
		}))
	}()

	if err := s.limiters.Check("list_reactions"); err != nil {
		return nil, ListReactionsOutput{}, err
	}

	reactions, err := s.store.Reactions(ctx, args.Run, store.ReactionFilter{
		Generator: args.Generator,
		Species:   args.Species,
		Limit:     clampLimit(args.Limit),
	})
	if err != nil {
		return nil, ListReactionsOutput{}, err
	}
	for i := range reactions {
		reactions[i].Generator = sanitize.Label(reactions[i].Generator)
	}
	return nil, ListReactionsOutput{Reactions: reactions, Count: len(reactions)}, nil
}

func (s *Server) handleValidate(ctx context.Context, _ *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("network_validate", start, retErr, auditParams(map[string]any{"run": args.Run}))
	}()

	if err := s.limiters.Check("network_validate"); err != nil {
		return nil, ValidateOutput{}, err
	}

	issues, err := s.store.ValidateNetwork(ctx, args.Run)
	if err != nil {
		return nil, ValidateOutput{}, fmt.Errorf("validation failed: %w", err)
	}
	if len(issues) == 0 {
		return nil, ValidateOutput{Valid: true, Message: "Network is consistent - no issues found"}, nil
	}

	out := ValidateOutput{Issues: make([]IssueOutput, len(issues))}
	counts := map[string]int{}
	var kinds []string
	for i, is := range issues {
		out.Issues[i] = IssueOutput{Entity: is.Entity, Field: is.Field, Ref: is.Ref, Issue: is.Issue}
		if counts[is.Issue] == 0 {
			kinds = append(kinds, is.Issue)
		}
		counts[is.Issue]++
	}
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%d %s", counts[k], k)
	}
	out.Message = "Found " + strings.Join(parts, ", ")
	return nil, out, nil
}

func (s *Server) handleGraph(ctx context.Context, _ *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("network_graph", start, retErr, auditParams(map[string]any{
			"run":            args.Run,
			"format":         args.Format,
			"min_population": args.MinPopulation,
		}))
	}()

	if err := s.limiters.Check("network_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	format := args.Format
	if format == "" {
		format = string(visualization.FormatJSON)
	}
	snap, err := s.store.Snapshot(ctx, args.Run)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	opts := visualization.Options{MinPopulation: args.MinPopulation}

	switch visualization.Format(format) {
	case visualization.FormatDOT:
		return nil, GraphOutput{Format: format, Graph: visualization.RenderDOT(snap, opts)}, nil
	case visualization.FormatJSON:
		return nil, GraphOutput{Format: format, Graph: visualization.RenderJSON(snap, opts)}, nil
	default:
		return nil, GraphOutput{}, fmt.Errorf("unsupported format %q (valid: dot, json)", format)
	}
}

// handleRunsResource lists stored runs as markdown.
func (s *Server) handleRunsResource(ctx context.Context, _ *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	runs, err := s.store.Runs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("# Simulation Runs\n\n")
	if len(runs) == 0 {
		sb.WriteString("No runs stored yet. Record one with `plexsim run`.\n")
	}
	for _, r := range runs {
		sum, err := s.store.Summary(ctx, r.ID.String())
		if err != nil {
			return nil, fmt.Errorf("summarizing run %s: %w", r.ID, err)
		}
		fmt.Fprintf(&sb, "- `%s` %s: %s at t=%g, %d families, %d species, %d reactions\n",
			r.ID, sanitize.Label(r.Model), r.Outcome, r.SimTime, sum.Families, sum.Species, sum.Reactions)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      runsURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

func (s *Server) handleCheckpointList(_ context.Context, _ *sdk.CallToolRequest, _ CheckpointListInput) (_ *sdk.CallToolResult, _ CheckpointListOutput, retErr error) {
	start := time.Now()
	defer func() { s.auditTool("checkpoint_list", start, retErr, nil) }()

	if err := s.limiters.Check("checkpoint_list"); err != nil {
		return nil, CheckpointListOutput{}, err
	}
	infos, err := checkpoint.List(s.checkpointDir)
	if err != nil {
		return nil, CheckpointListOutput{}, fmt.Errorf("listing checkpoints: %w", err)
	}
	out := CheckpointListOutput{Checkpoints: make([]CheckpointEntry, 0, len(infos))}
	for _, c := range infos {
		entry := CheckpointEntry{
			File:      filepath.Base(c.Path),
			SizeBytes: c.Size,
			CreatedAt: c.CreatedAt,
		}
		if h, err := checkpoint.ReadHeader(c.Path); err == nil {
			entry.RunID = h.RunID.String()
			entry.Time = h.Time
			entry.Reason = h.Reason
			entry.Species = h.SpeciesCount
			entry.Reactions = h.ReactionCount
		}
		out.Checkpoints = append(out.Checkpoints, entry)
	}
	out.Count = len(out.Checkpoints)
	return nil, out, nil
}

func (s *Server) handleCheckpointInspect(_ context.Context, _ *sdk.CallToolRequest, args CheckpointInspectInput) (_ *sdk.CallToolResult, _ CheckpointInspectOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("checkpoint_inspect", start, retErr, auditParams(map[string]any{"file": args.File}))
	}()

	if err := s.limiters.Check("checkpoint_inspect"); err != nil {
		return nil, CheckpointInspectOutput{}, err
	}
	path := args.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.checkpointDir, path)
	}
	path, err := pathutil.Confine(path, s.checkpointDir)
	if err != nil {
		return nil, CheckpointInspectOutput{}, fmt.Errorf("checkpoint path rejected: %w", err)
	}
	st, err := checkpoint.Read(path)
	if err != nil {
		return nil, CheckpointInspectOutput{}, fmt.Errorf("reading checkpoint %s: %w", pathutil.Redact(path), err)
	}

	out := CheckpointInspectOutput{
		File:      filepath.Base(path),
		RunID:     st.RunID.String(),
		CreatedAt: st.CreatedAt,
		Reason:    st.Reason,
		Time:      st.Time,
		Volume:    st.Volume,
		Fired:     st.Fired,
		Families:  len(st.Network.Families),
		Species:   len(st.Network.Species),
		Reactions: len(st.Network.Reactions),
	}
	for _, sp := range st.Network.Species {
		if sp.Population > 0 {
			out.Populated++
			out.TotalPopulation += sp.Population
		}
	}
	return nil, out, nil
}

// sanitizeKeys returns m with every key passed through sanitize.Label.
func sanitizeKeys(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[sanitize.Label(k)] += v
	}
	return out
}
