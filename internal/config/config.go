// Package config provides unified configuration loading for plexsim.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nvandessel/plexsim/internal/constants"
	"gopkg.in/yaml.v3"
)

// SimConfig contains all plexsim configuration settings.
type SimConfig struct {
	// Expansion controls how far the network is explored.
	Expansion ExpansionConfig `json:"expansion" yaml:"expansion"`

	// Run contains settings for the event loop.
	Run RunConfig `json:"run" yaml:"run"`

	// Dump configures periodic population dumps.
	Dump DumpConfig `json:"dump" yaml:"dump"`

	// Output configures files written next to the dump.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and expansion logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ExpansionConfig configures lazy network expansion.
type ExpansionConfig struct {
	// Depth is the notification depth given to newly populated species.
	Depth int `json:"depth" yaml:"depth"`

	// RateExtrapolation is the default rate strategy for rules that name
	// none: "fixed" or "mass".
	RateExtrapolation string `json:"rate_extrapolation" yaml:"rate_extrapolation"`

	// Generate enables rule-driven expansion. When false the network is
	// frozen after the initial species and explicit reactions are in place.
	Generate bool `json:"generate" yaml:"generate"`
}

// RunConfig configures the event loop.
type RunConfig struct {
	// StopTime is the simulated time at which the run stops, in seconds.
	StopTime float64 `json:"stop_time" yaml:"stop_time"`

	// Timeout is the wall-clock budget. Zero means none.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Seed seeds the random source.
	Seed uint64 `json:"seed" yaml:"seed"`

	// Volume is the reaction volume in liters.
	Volume float64 `json:"volume" yaml:"volume"`
}

// DumpConfig configures periodic dumps.
type DumpConfig struct {
	// Period is the simulated time between dump rows. Zero disables dumping.
	Period float64 `json:"period" yaml:"period"`

	// Path overrides the dump file location. Empty uses the output directory.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Format is "tsv" or "arrow".
	Format constants.DumpFormat `json:"format" yaml:"format"`
}

// OutputConfig configures run artifacts.
type OutputConfig struct {
	// Dir is the directory run artifacts are written to.
	Dir string `json:"dir" yaml:"dir"`

	// Checkpoint writes a checkpoint when a run times out or runs out of events.
	Checkpoint bool `json:"checkpoint" yaml:"checkpoint"`

	// Database is the SQLite file the final network is saved to. Empty uses
	// network.db in Dir; relative paths are under Dir.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`

	// Metrics is the Prometheus textfile written at run end. Empty disables
	// it; relative paths are under Dir.
	Metrics string `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// LoggingConfig configures plexsim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables expansion logging to <output.dir>/expansion.jsonl.
	// "trace" additionally logs every executed event.
	Level string `json:"level" yaml:"level"`
}

// Default returns a SimConfig with sensible defaults.
func Default() *SimConfig {
	return &SimConfig{
		Expansion: ExpansionConfig{
			Depth:             constants.DefaultDepth,
			RateExtrapolation: "fixed",
			Generate:          true,
		},
		Run: RunConfig{
			StopTime: constants.DefaultStopTime,
			Seed:     constants.DefaultSeed,
			Volume:   constants.DefaultVolume,
		},
		Dump: DumpConfig{
			Period: constants.DefaultDumpPeriod,
			Format: constants.DumpTSV,
		},
		Output: OutputConfig{
			Dir:        constants.DefaultOutDir,
			Checkpoint: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the location of the user configuration file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.ConfigDirName, constants.ConfigFileName), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.plexsim/config.yaml -> environment variables
func Load() (*SimConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SimConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Output.Dir = os.ExpandEnv(config.Output.Dir)
	config.Output.Database = os.ExpandEnv(config.Output.Database)

	return config, nil
}

// Save writes the configuration to path, creating its directory.
func Save(cfg *SimConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *SimConfig) Validate() error {
	if c.Expansion.Depth < 0 || c.Expansion.Depth > constants.MaxDepth {
		return fmt.Errorf("depth must be between 0 and %d, got %d", constants.MaxDepth, c.Expansion.Depth)
	}

	validExtrapolations := map[string]bool{"": true, "fixed": true, "mass": true, "mass-scaled": true}
	if !validExtrapolations[c.Expansion.RateExtrapolation] {
		return fmt.Errorf("invalid rate_extrapolation: %s (valid: fixed, mass)", c.Expansion.RateExtrapolation)
	}

	if c.Run.StopTime <= 0 {
		return fmt.Errorf("stop_time must be positive, got %g", c.Run.StopTime)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %v", c.Run.Timeout)
	}
	if c.Run.Volume <= 0 {
		return fmt.Errorf("volume must be positive, got %g", c.Run.Volume)
	}

	if c.Dump.Period < 0 {
		return fmt.Errorf("dump period must be non-negative, got %g", c.Dump.Period)
	}
	if !c.Dump.Format.Valid() {
		return fmt.Errorf("invalid dump format: %s (valid: tsv, arrow)", c.Dump.Format)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// Get retrieves a configuration value by dot-notation key.
func (c *SimConfig) Get(key string) (any, bool) {
	switch key {
	case "expansion.depth":
		return c.Expansion.Depth, true
	case "expansion.rate_extrapolation":
		return c.Expansion.RateExtrapolation, true
	case "expansion.generate":
		return c.Expansion.Generate, true
	case "run.stop_time":
		return c.Run.StopTime, true
	case "run.timeout":
		return c.Run.Timeout.String(), true
	case "run.seed":
		return c.Run.Seed, true
	case "run.volume":
		return c.Run.Volume, true
	case "dump.period":
		return c.Dump.Period, true
	case "dump.path":
		return c.Dump.Path, true
	case "dump.format":
		return c.Dump.Format.String(), true
	case "output.dir":
		return c.Output.Dir, true
	case "output.checkpoint":
		return c.Output.Checkpoint, true
	case "output.database":
		return c.Output.Database, true
	case "output.metrics":
		return c.Output.Metrics, true
	case "logging.level":
		return c.Logging.Level, true
	default:
		return nil, false
	}
}

// Set sets a configuration value by dot-notation key and validates the result.
func (c *SimConfig) Set(key, value string) error {
	next := *c
	switch key {
	case "expansion.depth":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid depth: %s", value)
		}
		next.Expansion.Depth = n
	case "expansion.rate_extrapolation":
		next.Expansion.RateExtrapolation = value
	case "expansion.generate":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid generate flag: %s", value)
		}
		next.Expansion.Generate = b
	case "run.stop_time":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid stop time: %s", value)
		}
		next.Run.StopTime = f
	case "run.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		next.Run.Timeout = d
	case "run.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s", value)
		}
		next.Run.Seed = n
	case "run.volume":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid volume: %s", value)
		}
		next.Run.Volume = f
	case "dump.period":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid dump period: %s", value)
		}
		next.Dump.Period = f
	case "dump.path":
		next.Dump.Path = value
	case "dump.format":
		next.Dump.Format = constants.DumpFormat(value)
	case "output.dir":
		next.Output.Dir = value
	case "output.checkpoint":
		next.Output.Checkpoint = value == "true" || value == "1"
	case "output.database":
		next.Output.Database = value
	case "output.metrics":
		next.Output.Metrics = value
	case "logging.level":
		next.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Keys lists every key accepted by Get and Set, in display order.
func Keys() []string {
	return []string{
		"expansion.depth",
		"expansion.rate_extrapolation",
		"expansion.generate",
		"run.stop_time",
		"run.timeout",
		"run.seed",
		"run.volume",
		"dump.period",
		"dump.path",
		"dump.format",
		"output.dir",
		"output.checkpoint",
		"output.database",
		"output.metrics",
		"logging.level",
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SimConfig) {
	if v := os.Getenv("PLEXSIM_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Expansion.Depth = n
		}
	}

	if v := os.Getenv("PLEXSIM_RATE_EXTRAPOLATION"); v != "" {
		config.Expansion.RateExtrapolation = v
	}

	if v := os.Getenv("PLEXSIM_GENERATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Expansion.Generate = b
		}
	}

	if v := os.Getenv("PLEXSIM_STOP_TIME"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Run.StopTime = f
		}
	}

	if v := os.Getenv("PLEXSIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Run.Timeout = d
		}
	}

	if v := os.Getenv("PLEXSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Run.Seed = n
		}
	}

	if v := os.Getenv("PLEXSIM_DUMP_FORMAT"); v != "" {
		config.Dump.Format = constants.DumpFormat(v)
	}

	if v := os.Getenv("PLEXSIM_OUTPUT_DIR"); v != "" {
		config.Output.Dir = v
	}

	if v := os.Getenv("PLEXSIM_DATABASE"); v != "" {
		config.Output.Database = v
	}

	if v := os.Getenv("PLEXSIM_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
