package dump

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/plexsim/internal/constants"
)

// Create opens path for writing in the given format, creating its directory.
func Create(path string, format constants.DumpFormat) (Writer, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("unknown dump format %q", format)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating dump directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating dump file: %w", err)
	}
	if format == constants.DumpArrow {
		return NewArrowWriter(f, 0), nil
	}
	return NewTSVWriter(f), nil
}
