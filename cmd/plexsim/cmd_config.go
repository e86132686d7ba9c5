package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage plexsim configuration",
		Long: `View and modify plexsim configuration settings.

Configuration is stored in ~/.plexsim/config.yaml, or the file named by
--config. Environment variables (PLEXSIM_SEED, PLEXSIM_OUTPUT_DIR, ...)
override the file.

Examples:
  plexsim config list                      # Show all settings
  plexsim config get run.stop_time         # Get a specific setting
  plexsim config set dump.format arrow     # Set a setting
  plexsim config set run.timeout 5m`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

// configPath returns the file config set writes to.
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.Path()
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, cfg)
			}

			path, _ := configPath(cmd)
			fmt.Fprintf(out, "Configuration (%s):\n\n", path)
			for _, key := range config.Keys() {
				value, _ := cfg.Get(key)
				if s, ok := value.(string); ok && s == "" {
					value = "(not set)"
				}
				fmt.Fprintf(out, "  %-30s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			value, found := cfg.Get(key)
			if !found {
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), map[string]any{
						"error": "key not found",
						"key":   key,
					})
				}
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := configPath(cmd)
			if err != nil {
				return err
			}
			// Set edits the file as stored, without environment overrides.
			cfg := config.Default()
			if fileCfg, err := config.LoadFromFile(path); err == nil {
				cfg = fileCfg
			}

			if err := cfg.Set(key, value); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}
