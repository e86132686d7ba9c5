package store

import (
	"path/filepath"

	"github.com/nvandessel/plexsim/internal/constants"
)

// ResolvePath places a relative database path under outDir. An empty
// path means the default database file in outDir.
func ResolvePath(outDir, path string) string {
	if path == "" {
		path = constants.DatabaseFile
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(outDir, path)
}
