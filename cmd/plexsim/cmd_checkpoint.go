package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/checkpoint"
	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/store"
)

func newCheckpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Manage checkpoints written by interrupted runs",
		Long: `A run that times out or runs out of events writes a checkpoint of its
network to <output.dir>/checkpoints before returning.

Examples:
  plexsim checkpoint list
  plexsim checkpoint verify plexsim-out/checkpoints/plexsim-checkpoint-...ckpt.gz
  plexsim checkpoint inspect <file>
  plexsim checkpoint save <file>
  plexsim checkpoint prune --keep 5 --max-age 7d`,
	}

	cmd.AddCommand(
		newCheckpointListCmd(),
		newCheckpointVerifyCmd(),
		newCheckpointInspectCmd(),
		newCheckpointSaveCmd(),
		newCheckpointPruneCmd(),
	)
	return cmd
}

// checkpointDir returns the checkpoint directory of the configured output.
func checkpointDir(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Output.Dir, constants.CheckpointDir), nil
}

func newCheckpointListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			infos, err := checkpoint.List(dir)
			if err != nil {
				return fmt.Errorf("failed to list checkpoints: %w", err)
			}

			type jsonEntry struct {
				Path      string  `json:"path"`
				Size      int64   `json:"size_bytes"`
				CreatedAt string  `json:"created_at"`
				RunID     string  `json:"run_id,omitempty"`
				Time      float64 `json:"time"`
				Reason    string  `json:"reason,omitempty"`
			}
			entries := make([]jsonEntry, 0, len(infos))
			for _, c := range infos {
				entry := jsonEntry{
					Path:      c.Path,
					Size:      c.Size,
					CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				}
				if h, err := checkpoint.ReadHeader(c.Path); err == nil {
					entry.RunID = h.RunID.String()
					entry.Time = h.Time
					entry.Reason = h.Reason
				}
				entries = append(entries, entry)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{
					"checkpoints": entries,
					"total_count": len(entries),
					"directory":   dir,
				})
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No checkpoints found in %s\n", dir)
				return nil
			}
			fmt.Fprintf(out, "Checkpoints in %s:\n", dir)
			var totalSize int64
			for i, e := range entries {
				totalSize += e.Size
				fmt.Fprintf(out, "  %s  %-9s t=%-10g %7s  %s\n",
					infos[i].CreatedAt.Local().Format("2006-01-02 15:04"),
					e.Reason, e.Time, formatBytes(e.Size), filepath.Base(e.Path))
			}
			fmt.Fprintf(out, "Total: %d checkpoints, %s\n", len(entries), formatBytes(totalSize))
			return nil
		},
	}
}

func newCheckpointVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify checkpoint integrity",
		Long: `Verify the integrity of a checkpoint by checking its SHA-256 checksum.

Examples:
  plexsim checkpoint verify plexsim-out/checkpoints/plexsim-checkpoint-20260301-120000.000-7d0c1a52.ckpt.gz`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filePath := args[0]
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if err := checkpoint.Verify(filePath); err != nil {
				if jsonOut {
					if encErr := writeJSON(out, map[string]any{
						"file":    filePath,
						"valid":   false,
						"error":   err.Error(),
						"message": "Checksum verification FAILED",
					}); encErr != nil {
						return encErr
					}
				} else {
					fmt.Fprintf(out, "FAILED: %v\n", err)
					fmt.Fprintf(out, "  File: %s\n", filePath)
				}
				return fmt.Errorf("checksum verification failed")
			}

			if jsonOut {
				return writeJSON(out, map[string]any{
					"file":    filePath,
					"version": checkpoint.FormatVersion,
					"valid":   true,
					"message": "Checksum OK",
				})
			}
			fmt.Fprintf(out, "OK: checksum verified\n")
			fmt.Fprintf(out, "  File: %s\n", filePath)
			return nil
		},
	}
}

func newCheckpointInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show what a checkpoint holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			st, err := checkpoint.Read(args[0])
			if err != nil {
				return err
			}

			var populated int
			var total int64
			for _, sp := range st.Network.Species {
				if sp.Population > 0 {
					populated++
					total += sp.Population
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return writeJSON(out, map[string]any{
					"run_id":           st.RunID,
					"created_at":       st.CreatedAt,
					"reason":           st.Reason,
					"time":             st.Time,
					"volume":           st.Volume,
					"fired":            st.Fired,
					"families":         len(st.Network.Families),
					"species":          len(st.Network.Species),
					"reactions":        len(st.Network.Reactions),
					"populated":        populated,
					"total_population": total,
				})
			}
			fmt.Fprintf(out, "Checkpoint of run %s\n", st.RunID)
			fmt.Fprintf(out, "  Written:   %s (%s)\n", st.CreatedAt.Local().Format("2006-01-02 15:04:05"), st.Reason)
			fmt.Fprintf(out, "  Time:      t=%g after %d reactions\n", st.Time, st.Fired)
			fmt.Fprintf(out, "  Volume:    %g L\n", st.Volume)
			fmt.Fprintf(out, "  Network:   %d families, %d species, %d reactions\n",
				len(st.Network.Families), len(st.Network.Species), len(st.Network.Reactions))
			fmt.Fprintf(out, "  Populated: %d species, %d molecules\n", populated, total)
			return nil
		},
	}
}

func newCheckpointSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Store a checkpoint's network in the database",
		Long: `Store the network held by a checkpoint in the network database so it can
be inspected with 'plexsim runs' and 'plexsim graph'. The run is recorded
under the checkpoint's run ID, replacing any earlier record of that run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, _ := cmd.Flags().GetString("model")
			st, err := checkpoint.Read(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := commandContext(cmd)
			db, err := store.Open(ctx, store.ResolvePath(cfg.Output.Dir, cfg.Output.Database))
			if err != nil {
				return err
			}
			defer db.Close()

			run := store.Run{
				ID:         st.RunID,
				Model:      model,
				StartedAt:  st.CreatedAt,
				FinishedAt: st.CreatedAt,
				SimTime:    st.Time,
				Volume:     st.Volume,
				Fired:      st.Fired,
				Outcome:    st.Reason,
			}
			if err := db.SaveSnapshot(ctx, run, st.Network); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved run %s to %s\n", st.RunID, db.Path())
			return nil
		},
	}
	cmd.Flags().String("model", "checkpoint", "Model name to record")
	return cmd
}

func newCheckpointPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old checkpoints",
		Long: `Delete checkpoints not kept by the retention policy. A checkpoint is kept
if it is among the --keep newest or younger than --max-age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")

			var policies []checkpoint.Policy
			if keep > 0 {
				policies = append(policies, &checkpoint.CountPolicy{MaxCount: keep})
			}
			if maxAge != "" {
				d, err := checkpoint.ParseDuration(maxAge)
				if err != nil {
					return fmt.Errorf("invalid --max-age: %w", err)
				}
				policies = append(policies, &checkpoint.AgePolicy{MaxAge: d})
			}
			if len(policies) == 0 {
				return fmt.Errorf("nothing to prune by: set --keep or --max-age")
			}

			dir, err := checkpointDir(cmd)
			if err != nil {
				return err
			}
			deleted, err := checkpoint.Prune(dir, &checkpoint.CompositePolicy{Policies: policies})
			if err != nil {
				return fmt.Errorf("failed to prune checkpoints: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if deleted == nil {
					deleted = []string{}
				}
				return writeJSON(out, map[string]any{"deleted": deleted, "count": len(deleted)})
			}
			for _, path := range deleted {
				fmt.Fprintf(out, "Deleted %s\n", filepath.Base(path))
			}
			fmt.Fprintf(out, "Pruned %d checkpoint(s)\n", len(deleted))
			return nil
		},
	}
	cmd.Flags().Int("keep", 10, "Keep this many of the newest checkpoints")
	cmd.Flags().String("max-age", "", "Also keep checkpoints younger than this (e.g. 36h, 7d, 2w)")
	return cmd
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1fGB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1fMB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1fKB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%dB", b)
	}
}
