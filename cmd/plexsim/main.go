package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/config"
	"github.com/nvandessel/plexsim/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plexsim",
		Short: "Rule-based stochastic simulation of molecular complexes",
		Long: `plexsim simulates networks of molecular complexes that bind, unbind and
change state according to rules.

The reaction network is generated lazily: species are only explored once
they become populated, and reactions are drawn stochastically as the
network grows.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ~/.plexsim/config.yaml)")
	rootCmd.PersistentFlags().String("out", "", "Output directory (overrides output.dir)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newGraphCmd(),
		newExportCmd(),
		newImportCmd(),
		newCheckpointCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration named by --config, or the default
// locations, and applies --out.
func loadConfig(cmd *cobra.Command) (*config.SimConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.SimConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		cfg.Output.Dir = out
	}
	return cfg, nil
}

// openDatabase opens the network database of the configured output directory.
func openDatabase(cmd *cobra.Command) (*store.NetworkDB, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := store.ResolvePath(cfg.Output.Dir, cfg.Output.Database)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no network database at %s (run 'plexsim run' first): %w", path, err)
	}
	return store.Open(commandContext(cmd), path)
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runArg returns the optional run ID argument.
func runArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
