package constants

// DumpFormat selects the file format of periodic dumps.
type DumpFormat string

const (
	// DumpTSV writes tab-separated text with a header row.
	DumpTSV DumpFormat = "tsv"

	// DumpArrow writes an Arrow IPC file.
	DumpArrow DumpFormat = "arrow"
)

// Valid returns true if the format is a recognized value.
func (f DumpFormat) Valid() bool {
	switch f {
	case DumpTSV, DumpArrow:
		return true
	}
	return false
}

// String returns the string representation of the format.
func (f DumpFormat) String() string {
	return string(f)
}

// FileName returns the default dump file name for the format.
func (f DumpFormat) FileName() string {
	if f == DumpArrow {
		return DumpFileArrow
	}
	return DumpFileTSV
}
