package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/modelfile"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model.yaml>",
		Short: "Check a model file without simulating it",
		Long: `Parse and resolve a model file, reporting every problem found.

Examples:
  plexsim validate kinase.yaml
  plexsim validate kinase.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path := args[0]
			out := cmd.OutOrStdout()

			m, err := modelfile.Load(path)
			if err != nil {
				var verr *modelfile.ValidationError
				issues := []string{err.Error()}
				if errors.As(err, &verr) {
					issues = verr.Issues
				}
				if jsonOut {
					if encErr := writeJSON(out, map[string]any{
						"file":   path,
						"valid":  false,
						"issues": issues,
					}); encErr != nil {
						return encErr
					}
				} else {
					fmt.Fprintf(out, "%s: %d issue(s)\n", path, len(issues))
					for _, issue := range issues {
						fmt.Fprintf(out, "  - %s\n", issue)
					}
				}
				return fmt.Errorf("model %s is invalid", path)
			}

			ruleKinds := make(map[string]int)
			ruleNames := make([]string, len(m.Rules))
			for i, r := range m.Rules {
				ruleKinds[r.Kind()]++
				ruleNames[i] = r.Name()
			}

			if jsonOut {
				return writeJSON(out, map[string]any{
					"file":       path,
					"valid":      true,
					"name":       m.Name,
					"mols":       len(m.States.Mols()),
					"rules":      ruleNames,
					"rule_kinds": ruleKinds,
					"species":    len(m.Species),
					"reactions":  len(m.Reactions),
					"events":     len(m.Events),
					"dump":       len(m.Dump),
				})
			}

			fmt.Fprintf(out, "%s: valid\n", path)
			if m.Name != "" {
				fmt.Fprintf(out, "  Model:     %s\n", m.Name)
			}
			fmt.Fprintf(out, "  Mols:      %d\n", len(m.States.Mols()))
			fmt.Fprintf(out, "  Rules:     %d\n", len(m.Rules))
			for _, r := range m.Rules {
				fmt.Fprintf(out, "    %-20s %s\n", r.Name(), r.Kind())
			}
			fmt.Fprintf(out, "  Species:   %d\n", len(m.Species))
			fmt.Fprintf(out, "  Reactions: %d\n", len(m.Reactions))
			fmt.Fprintf(out, "  Events:    %d\n", len(m.Events))
			return nil
		},
	}
	return cmd
}
