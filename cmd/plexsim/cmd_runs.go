package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
		Long: `Inspect the networks saved by 'plexsim run'.

Run IDs may be abbreviated to 'latest' or omitted to select the newest run.

Examples:
  plexsim runs list
  plexsim runs show
  plexsim runs species --min 10 --limit 20
  plexsim runs reactions --generator bind
  plexsim runs check`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsSpeciesCmd(),
		newRunsReactionsCmd(),
		newRunsCheckCmd(),
	)
	return cmd
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Runs(commandContext(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"runs": runs, "count": len(runs)})
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs stored.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-20s %-10s t=%-10g fired=%d  %s\n",
					r.ID, r.Model, r.Outcome, r.SimTime, r.Fired, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Summarize a run's network",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			sum, err := db.Summary(commandContext(cmd), runArg(args))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, sum)
			}

			fmt.Fprintf(out, "Run %s (%s)\n", sum.Run.ID, sum.Run.Model)
			fmt.Fprintf(out, "  Outcome:    %s at t=%g after %d reactions\n", sum.Run.Outcome, sum.Run.SimTime, sum.Run.Fired)
			fmt.Fprintf(out, "  Seed:       %d\n", sum.Run.Seed)
			fmt.Fprintf(out, "  Volume:     %g L\n", sum.Run.Volume)
			fmt.Fprintf(out, "  Families:   %d\n", sum.Families)
			fmt.Fprintf(out, "  Species:    %d (%d populated, %d molecules)\n", sum.Species, sum.Populated, sum.TotalPopulation)
			fmt.Fprintf(out, "  Reactions:  %d\n", sum.Reactions)
			gens := make([]string, 0, len(sum.Generators))
			for g := range sum.Generators {
				gens = append(gens, g)
			}
			slices.Sort(gens)
			for _, g := range gens {
				fmt.Fprintf(out, "    %-20s %d\n", g, sum.Generators[g])
			}
			return nil
		},
	}
}

func newRunsSpeciesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "species [run-id]",
		Short: "List species, most populated first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			minPop, _ := cmd.Flags().GetInt64("min")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := store.SpeciesFilter{MinPopulation: minPop, Limit: limit}
			if cmd.Flags().Changed("family") {
				family, _ := cmd.Flags().GetInt("family")
				filter.Family = &family
			}

			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			species, err := db.Species(commandContext(cmd), runArg(args), filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"species": species, "count": len(species)})
			}
			for _, sp := range species {
				fmt.Fprintf(out, "%-6s %10d  family=%-4d %s\n", sp.Tag, sp.Population, sp.Family, sp.Name)
			}
			return nil
		},
	}
	cmd.Flags().Int64("min", 0, "Only species with at least this population")
	cmd.Flags().Int("family", 0, "Only species of this family")
	cmd.Flags().Int("limit", 50, "Maximum number of species (0 for all)")
	return cmd
}

func newRunsReactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reactions [run-id]",
		Short: "List reactions in creation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			generator, _ := cmd.Flags().GetString("generator")
			species, _ := cmd.Flags().GetString("species")
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			reactions, err := db.Reactions(commandContext(cmd), runArg(args), store.ReactionFilter{
				Generator: generator,
				Species:   species,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{"reactions": reactions, "count": len(reactions)})
			}
			for _, r := range reactions {
				fmt.Fprintf(out, "%-6s %-16s %s -> %s  k=%g\n",
					r.Tag, r.Generator, formatTerms(r.Reactants), formatTerms(r.Products), r.Rate)
			}
			return nil
		},
	}
	cmd.Flags().String("generator", "", "Only reactions produced by this rule")
	cmd.Flags().String("species", "", "Only reactions with this species tag on either side")
	cmd.Flags().Int("limit", 50, "Maximum number of reactions (0 for all)")
	return cmd
}

func newRunsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [run-id]",
		Short: "Check a stored network for consistency issues",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := commandContext(cmd)
			if err := db.ValidateIntegrity(ctx); err != nil {
				return err
			}
			issues, err := db.ValidateNetwork(ctx, runArg(args))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := writeJSON(out, map[string]any{"valid": len(issues) == 0, "issues": issues}); err != nil {
					return err
				}
			} else if len(issues) == 0 {
				fmt.Fprintln(out, "Network is consistent - no issues found")
			} else {
				fmt.Fprintf(out, "Found %d issue(s):\n", len(issues))
				for _, is := range issues {
					fmt.Fprintf(out, "  - %s\n", is)
				}
			}
			if len(issues) > 0 {
				return fmt.Errorf("network has %d consistency issue(s)", len(issues))
			}
			return nil
		},
	}
}

func formatTerms(terms []network.TermInfo) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		if t.Mult > 1 {
			parts[i] = fmt.Sprintf("%d %s", t.Mult, t.Species)
		} else {
			parts[i] = t.Species
		}
	}
	return strings.Join(parts, " + ")
}
