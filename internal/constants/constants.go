// Package constants provides named constants used throughout plexsim.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Physical constants
const (
	// Avogadro is Avogadro's number, in molecules per mole.
	Avogadro = 6.02214076e23

	// DefaultVolume is the reaction volume in liters when a model sets none.
	// It is roughly the volume of a bacterial cell.
	DefaultVolume = 1e-15
)

// Expansion constants
const (
	// DefaultDepth is the notification depth given to newly populated species.
	// Depth 1 lets a new species find its partners and the products one step out.
	DefaultDepth = 1

	// MaxDepth bounds the configurable depth. Expansion cost grows
	// combinatorially with depth.
	MaxDepth = 16
)

// Run constants
const (
	// DefaultStopTime is the simulated time in seconds at which a run ends
	// when neither the model nor the configuration names one.
	DefaultStopTime = 10.0

	// DefaultSeed seeds the random source when none is configured.
	DefaultSeed = 1
)

// Dump constants
const (
	// DefaultDumpPeriod is the simulated time between dump rows. Zero disables dumping.
	DefaultDumpPeriod = 0.1

	// DumpBatchRows is the number of rows an Arrow dump writer buffers per record batch.
	DumpBatchRows = 1024
)

// Checkpoint constants
const (
	// MaxCheckpointRotation is the default maximum number of checkpoint files to keep.
	MaxCheckpointRotation = 10

	// MaxCheckpointDecompressedSize bounds the decompressed payload of a checkpoint.
	MaxCheckpointDecompressedSize = 256 << 20
)

// Output file names inside the output directory.
const (
	DumpFileTSV    = "dump.tsv"
	DumpFileArrow  = "dump.arrow"
	DatabaseFile   = "network.db"
	MetricsFile    = "plexsim.prom"
	CheckpointDir  = "checkpoints"
	DefaultOutDir  = "plexsim-out"
	ConfigDirName  = ".plexsim"
	ConfigFileName = "config.yaml"
	AuditFile      = "audit.jsonl"
)
