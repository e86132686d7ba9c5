package mcp

import (
	"time"

	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/sanitize"
	"github.com/nvandessel/plexsim/internal/store"
)

// RunInfo describes a stored run.
type RunInfo struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	Seed       uint64    `json:"seed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	SimTime    float64   `json:"sim_time"`
	Volume     float64   `json:"volume"`
	Fired      int64     `json:"fired"`
	Outcome    string    `json:"outcome"`
}

func runInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:         r.ID.String(),
		Model:      sanitize.Label(r.Model),
		Seed:       r.Seed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		SimTime:    r.SimTime,
		Volume:     r.Volume,
		Fired:      r.Fired,
		Outcome:    r.Outcome,
	}
}

// ListRunsInput defines the input for the network_runs tool.
type ListRunsInput struct{}

// ListRunsOutput defines the output for the network_runs tool.
type ListRunsOutput struct {
	Runs  []RunInfo `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int       `json:"count" jsonschema:"Number of runs"`
}

// SummaryInput defines the input for the network_summary tool.
type SummaryInput struct {
	Run string `json:"run,omitempty" jsonschema:"Run ID; empty or 'latest' selects the newest run"`
}

// SummaryOutput defines the output for the network_summary tool.
type SummaryOutput struct {
	Run             RunInfo        `json:"run"`
	Families        int            `json:"families"`
	Species         int            `json:"species"`
	Reactions       int            `json:"reactions"`
	Populated       int            `json:"populated" jsonschema:"Species with nonzero population"`
	TotalPopulation int64          `json:"total_population"`
	Generators      map[string]int `json:"generators" jsonschema:"Reaction count per generating rule"`
}

// ListSpeciesInput defines the input for the list_species tool.
type ListSpeciesInput struct {
	Run           string `json:"run,omitempty" jsonschema:"Run ID; empty or 'latest' selects the newest run"`
	MinPopulation int64  `json:"min_population,omitempty" jsonschema:"Only species with at least this population"`
	Family        *int   `json:"family,omitempty" jsonschema:"Only species of this family ID"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum number of species (default: 50)"`
}

// ListSpeciesOutput defines the output for the list_species tool.
type ListSpeciesOutput struct {
	Species []network.SpeciesInfo `json:"species" jsonschema:"Species, most populated first"`
	Count   int                   `json:"count" jsonschema:"Number of species returned"`
}

// ListReactionsInput defines the input for the list_reactions tool.
type ListReactionsInput struct {
	Run       string `json:"run,omitempty" jsonschema:"Run ID; empty or 'latest' selects the newest run"`
	Generator string `json:"generator,omitempty" jsonschema:"Only reactions produced by this rule"`
	Species   string `json:"species,omitempty" jsonschema:"Only reactions with this species tag on either side"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of reactions (default: 50)"`
}

// ListReactionsOutput defines the output for the list_reactions tool.
type ListReactionsOutput struct {
	Reactions []network.ReactionInfo `json:"reactions" jsonschema:"Reactions in creation order"`
	Count     int                    `json:"count" jsonschema:"Number of reactions returned"`
}

// ValidateInput defines the input for the network_validate tool.
type ValidateInput struct {
	Run string `json:"run,omitempty" jsonschema:"Run ID; empty or 'latest' selects the newest run"`
}

// ValidateOutput defines the output for the network_validate tool.
type ValidateOutput struct {
	Valid   bool          `json:"valid" jsonschema:"Whether the stored network is consistent"`
	Issues  []IssueOutput `json:"issues,omitempty" jsonschema:"Consistency issues found"`
	Message string        `json:"message" jsonschema:"Human-readable summary"`
}

// IssueOutput is one consistency issue.
type IssueOutput struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Ref    string `json:"ref,omitempty"`
	Issue  string `json:"issue"`
}

// GraphInput defines the input for the network_graph tool.
type GraphInput struct {
	Run           string `json:"run,omitempty" jsonschema:"Run ID; empty or 'latest' selects the newest run"`
	Format        string `json:"format,omitempty" jsonschema:"Output format: 'dot' or 'json' (default: 'json')"`
	MinPopulation int64  `json:"min_population,omitempty" jsonschema:"Hide species below this population"`
}

// GraphOutput defines the output for the network_graph tool.
type GraphOutput struct {
	Format string `json:"format"`
	Graph  any    `json:"graph" jsonschema:"DOT text or JSON graph"`
}

// CheckpointListInput defines the input for the checkpoint_list tool.
type CheckpointListInput struct{}

// CheckpointEntry describes one checkpoint file.
type CheckpointEntry struct {
	File      string    `json:"file" jsonschema:"File name within the checkpoint directory"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
	Time      float64   `json:"time" jsonschema:"Simulated time of the checkpoint"`
	Reason    string    `json:"reason,omitempty" jsonschema:"Why the checkpoint was written: timeout or exhausted"`
	Species   int       `json:"species"`
	Reactions int       `json:"reactions"`
}

// CheckpointListOutput defines the output for the checkpoint_list tool.
type CheckpointListOutput struct {
	Checkpoints []CheckpointEntry `json:"checkpoints" jsonschema:"Checkpoints, newest first"`
	Count       int               `json:"count"`
}

// CheckpointInspectInput defines the input for the checkpoint_inspect tool.
type CheckpointInspectInput struct {
	File string `json:"file" jsonschema:"Checkpoint file name as listed by checkpoint_list"`
}

// CheckpointInspectOutput defines the output for the checkpoint_inspect tool.
type CheckpointInspectOutput struct {
	File            string    `json:"file"`
	RunID           string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
	Reason          string    `json:"reason,omitempty"`
	Time            float64   `json:"time"`
	Volume          float64   `json:"volume"`
	Fired           int64     `json:"fired"`
	Families        int       `json:"families"`
	Species         int       `json:"species"`
	Reactions       int       `json:"reactions"`
	Populated       int       `json:"populated"`
	TotalPopulation int64     `json:"total_population"`
}
