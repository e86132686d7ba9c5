package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nvandessel/plexsim/internal/checkpoint"
	"github.com/nvandessel/plexsim/internal/config"
	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/dump"
	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/logging"
	"github.com/nvandessel/plexsim/internal/metrics"
	"github.com/nvandessel/plexsim/internal/modelfile"
	"github.com/nvandessel/plexsim/internal/rules"
	"github.com/nvandessel/plexsim/internal/sim"
	"github.com/nvandessel/plexsim/internal/store"
)

// runResult is what a finished run reports.
type runResult struct {
	RunID      string  `json:"run_id"`
	Model      string  `json:"model"`
	Outcome    string  `json:"outcome"`
	Depth      int     `json:"depth"`
	Generation bool    `json:"generation"`
	SimTime    float64 `json:"sim_time"`
	Fired      int64   `json:"fired"`
	Families   int     `json:"families"`
	Species    int     `json:"species"`
	Reactions  int     `json:"reactions"`
	Dump       string  `json:"dump,omitempty"`
	Database   string  `json:"database,omitempty"`
	Checkpoint string  `json:"checkpoint,omitempty"`
	Metrics    string  `json:"metrics,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <model.yaml>",
		Short: "Simulate a model",
		Long: `Load a model, expand its reaction network lazily and simulate it until
the stop time.

Populations are dumped periodically to the output directory and the final
network is saved to its SQLite database. If the run times out or runs out
of events, a checkpoint is written first.

Settings in the model override the configuration; flags override both.

Examples:
  plexsim run kinase.yaml
  plexsim run kinase.yaml --stop 100 --seed 7 --dump-format arrow
  plexsim run kinase.yaml --timeout 30s --out results/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			noDB, _ := cmd.Flags().GetBool("no-db")

			ctx, cancel := context.WithCancel(commandContext(cmd))
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			res, runErr := executeRun(ctx, args[0], cfg, runOptions{
				SkipDatabase: noDB,
				Log:          cmd.ErrOrStderr(),
				Configure: func(cfg *config.SimConfig) error {
					applyRunFlags(cmd, cfg)
					if err := cfg.Validate(); err != nil {
						return fault.WrapConfig(err, "config", "invalid configuration")
					}
					return nil
				},
			})
			if res == nil {
				return runErr
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printRunResult(cmd.OutOrStdout(), res)
			}
			return runErr
		},
	}

	cmd.Flags().Float64("stop", 0, "Simulated stop time in seconds (overrides run.stop_time)")
	cmd.Flags().Uint64("seed", 0, "Random seed (overrides run.seed)")
	cmd.Flags().Int("depth", 0, "Expansion depth (overrides expansion.depth)")
	cmd.Flags().Float64("volume", 0, "Reaction volume in liters (overrides run.volume)")
	cmd.Flags().Duration("timeout", 0, "Wall-clock budget, e.g. 30s (overrides run.timeout)")
	cmd.Flags().Float64("dump-period", 0, "Simulated time between dump rows; 0 disables dumping (overrides dump.period)")
	cmd.Flags().String("dump-format", "", "Dump format: tsv or arrow (overrides dump.format)")
	cmd.Flags().String("log-level", "", "Log level: info, debug or trace (overrides logging.level)")
	cmd.Flags().Bool("no-generation", false, "Freeze the network after the initial species and explicit reactions (sets expansion.generate=false)")
	cmd.Flags().Bool("no-db", false, "Don't save the final network to the database")
	cmd.Flags().Bool("no-checkpoint", false, "Don't write a checkpoint on timeout or exhaustion")

	return cmd
}

// applyRunFlags copies explicitly set flags over the configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.SimConfig) {
	flags := cmd.Flags()
	if flags.Changed("stop") {
		cfg.Run.StopTime, _ = flags.GetFloat64("stop")
	}
	if flags.Changed("seed") {
		cfg.Run.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("depth") {
		cfg.Expansion.Depth, _ = flags.GetInt("depth")
	}
	if flags.Changed("volume") {
		cfg.Run.Volume, _ = flags.GetFloat64("volume")
	}
	if flags.Changed("timeout") {
		cfg.Run.Timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("dump-period") {
		cfg.Dump.Period, _ = flags.GetFloat64("dump-period")
	}
	if flags.Changed("dump-format") {
		f, _ := flags.GetString("dump-format")
		cfg.Dump.Format = constants.DumpFormat(f)
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("no-generation") {
		noGeneration, _ := flags.GetBool("no-generation")
		cfg.Expansion.Generate = !noGeneration
	}
	if flags.Changed("no-checkpoint") {
		noCheckpoint, _ := flags.GetBool("no-checkpoint")
		cfg.Output.Checkpoint = !noCheckpoint
	}
}

// applyModelSettings copies the model's own settings over the configuration.
func applyModelSettings(cfg *config.SimConfig, s modelfile.Settings) {
	if s.Depth != nil {
		cfg.Expansion.Depth = *s.Depth
	}
	if s.Volume != nil {
		cfg.Run.Volume = *s.Volume
	}
	if s.StopTime != nil {
		cfg.Run.StopTime = *s.StopTime
	}
	if s.RateExtrapolation != "" {
		cfg.Expansion.RateExtrapolation = s.RateExtrapolation
	}
}

// runOptions carry what executeRun needs besides the configuration.
type runOptions struct {
	SkipDatabase bool
	// Configure runs after the model's settings are merged into the
	// configuration, so command-line overrides win over both.
	Configure func(cfg *config.SimConfig) error
	// Log receives operational logging.
	Log io.Writer
	// RunID is generated when nil.
	RunID uuid.UUID
}

// executeRun loads and simulates a model and writes its artifacts. It
// returns a result whenever the simulation was built, together with the
// run's error if it did not stop cleanly.
func executeRun(ctx context.Context, modelPath string, cfg *config.SimConfig, opts runOptions) (*runResult, error) {
	if opts.Log == nil {
		opts.Log = io.Discard
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	model, err := modelfile.Load(modelPath)
	if err != nil {
		return nil, err
	}
	applyModelSettings(cfg, model.Settings)
	if opts.Configure != nil {
		if err := opts.Configure(cfg); err != nil {
			return nil, err
		}
	}

	outDir := cfg.Output.Dir
	logger := logging.NewLogger(cfg.Logging.Level, opts.Log).With("run", opts.RunID.String()[:8])
	trace := logging.NewExpansionLogger(outDir, cfg.Logging.Level)
	defer trace.Close()

	extrap, err := rules.ParseExtrapolation(cfg.Expansion.RateExtrapolation)
	if err != nil {
		return nil, fault.WrapConfig(err, "config", "expansion.rate_extrapolation")
	}

	s, err := sim.FromModel(model, sim.ModelOptions{
		Options: sim.Options{
			Volume:   cfg.Run.Volume,
			StopTime: cfg.Run.StopTime,
			Timeout:  cfg.Run.Timeout,
			Seed:     cfg.Run.Seed,
			Logger:   logger,
			Trace:    trace,
		},
		Depth:        cfg.Expansion.Depth,
		Extrapolator: extrap,
		NoGeneration: !cfg.Expansion.Generate,
	})
	if err != nil {
		return nil, err
	}

	name := model.Name
	if name == "" {
		name = filepath.Base(modelPath)
	}
	res := &runResult{
		RunID:      opts.RunID.String(),
		Model:      name,
		Depth:      s.Store().MaxDepth(),
		Generation: cfg.Expansion.Generate,
	}

	rec := metrics.NewRecorder(func() int { return len(s.Store().Recognizer().Families()) })
	for _, sp := range s.Store().AllSpecies() {
		rec.SpeciesCreated(sp)
	}
	for _, r := range s.Store().AllReactions() {
		rec.ReactionCreated(r)
	}
	s.Store().Subscribe(rec)
	s.Observe(rec)

	var dumpWriter dump.Writer
	if cfg.Dump.Period > 0 {
		path := cfg.Dump.Path
		if path == "" {
			path = filepath.Join(outDir, cfg.Dump.Format.FileName())
		}
		dumpWriter, err = dump.Create(path, cfg.Dump.Format)
		if err != nil {
			return nil, err
		}
		if _, err := s.AddDump(dumpWriter, s.Dumpables(), cfg.Dump.Period); err != nil {
			dumpWriter.Close()
			return nil, err
		}
		res.Dump = path
	}

	if cfg.Output.Checkpoint {
		s.OnFault(func(_ context.Context, s *sim.Simulation) error {
			reason := "timeout"
			if s.Scheduler().Len() == 0 {
				reason = "exhausted"
			}
			path := checkpoint.GeneratePath(filepath.Join(outDir, constants.CheckpointDir), opts.RunID, time.Now())
			if err := checkpoint.Write(path, checkpoint.Capture(s, opts.RunID, reason)); err != nil {
				return err
			}
			logger.Info("checkpoint written", "path", path, "reason", reason)
			res.Checkpoint = path
			return nil
		})
	}

	started := time.Now().UTC()
	logger.Info("run started", "model", name, "seed", cfg.Run.Seed, "stop", cfg.Run.StopTime)
	runErr := s.Run(ctx)
	finished := time.Now().UTC()

	if dumpWriter != nil {
		if err := dumpWriter.Close(); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("closing dump: %w", err))
		}
	}

	res.Outcome = outcome(runErr)
	res.SimTime = s.Now()
	res.Fired = s.ReactionCount()
	res.Families = len(s.Store().Recognizer().Families())
	res.Species = s.Store().SpeciesCount()
	res.Reactions = s.Store().ReactionCount()
	if runErr != nil {
		res.Error = runErr.Error()
	}

	if !opts.SkipDatabase {
		path := store.ResolvePath(outDir, cfg.Output.Database)
		if err := saveRun(ctx, path, store.Run{
			ID:         opts.RunID,
			Model:      name,
			Seed:       cfg.Run.Seed,
			StartedAt:  started,
			FinishedAt: finished,
			SimTime:    res.SimTime,
			Volume:     s.Volume(),
			Fired:      res.Fired,
			Outcome:    res.Outcome,
		}, s); err != nil {
			return res, errors.Join(runErr, err)
		}
		res.Database = path
	}

	if cfg.Output.Metrics != "" {
		path := cfg.Output.Metrics
		if !filepath.IsAbs(path) {
			path = filepath.Join(outDir, path)
		}
		if err := rec.WriteTextfile(path); err != nil {
			return res, errors.Join(runErr, err)
		}
		res.Metrics = path
	}

	logger.Info("run finished", "outcome", res.Outcome, "elapsed", finished.Sub(started))
	return res, runErr
}

// saveRun stores the final network. The save uses a fresh context so a
// cancelled run is still recorded.
func saveRun(ctx context.Context, path string, run store.Run, s *sim.Simulation) error {
	saveCtx := context.WithoutCancel(ctx)
	db, err := store.Open(saveCtx, path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.SaveSnapshot(saveCtx, run, s.Snapshot()); err != nil {
		return fmt.Errorf("saving network: %w", err)
	}
	return nil
}

// outcome classifies how a run ended.
func outcome(err error) string {
	switch {
	case err == nil:
		return "stopped"
	case fault.IsKind(err, fault.Timeout):
		return "timeout"
	case fault.IsKind(err, fault.Exhausted):
		return "exhausted"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func printRunResult(w io.Writer, res *runResult) {
	fmt.Fprintf(w, "Run %s (%s): %s at t=%g\n", res.RunID, res.Model, res.Outcome, res.SimTime)
	fmt.Fprintf(w, "  Reactions fired: %d\n", res.Fired)
	if res.Generation {
		fmt.Fprintf(w, "  Expansion depth: %d\n", res.Depth)
	} else {
		fmt.Fprintf(w, "  Expansion depth: %d (generation off)\n", res.Depth)
	}
	fmt.Fprintf(w, "  Network:         %d families, %d species, %d reactions\n", res.Families, res.Species, res.Reactions)
	if res.Dump != "" {
		fmt.Fprintf(w, "  Dump:            %s\n", res.Dump)
	}
	if res.Database != "" {
		fmt.Fprintf(w, "  Database:        %s\n", res.Database)
	}
	if res.Checkpoint != "" {
		fmt.Fprintf(w, "  Checkpoint:      %s\n", res.Checkpoint)
	}
	if res.Metrics != "" {
		fmt.Fprintf(w, "  Metrics:         %s\n", res.Metrics)
	}
}
