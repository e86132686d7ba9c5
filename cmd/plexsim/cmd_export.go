package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/store"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a stored run as JSON lines",
		Long: `Write a run's network as JSON lines: one run record followed by its
families, species and reactions. The output can be loaded into another
database with 'plexsim import'.

Examples:
  plexsim export > run.jsonl
  plexsim export 7d0c1a52-3f7e-4f55-9b1e-2b8f3f5d8a10 -o run.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")

			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if err := db.ExportJSONL(commandContext(cmd), runArg(args), w); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
	return cmd
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.jsonl>",
		Short: "Import a run exported with 'plexsim export'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := store.Open(commandContext(cmd), store.ResolvePath(cfg.Output.Dir, cfg.Output.Database))
			if err != nil {
				return err
			}
			defer db.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening import file: %w", err)
			}
			defer f.Close()

			run, err := db.ImportJSONL(commandContext(cmd), f)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"imported": run.ID, "database": db.Path()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported run %s into %s\n", run.ID, db.Path())
			return nil
		},
	}
}
