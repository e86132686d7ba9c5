// Package pathutil confines file paths supplied by clients to a directory.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutside is returned when a path resolves outside the allowed roots.
var ErrOutside = errors.New("path is outside the allowed directories")

// Redact shortens path to .../<parent>/<base> for messages returned to
// clients.
func Redact(path string) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(clean))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(clean)
	}
	return ".../" + parent + "/" + filepath.Base(clean)
}

// Confine resolves path and checks that it lies inside one of roots.
// Symlinks are followed as far as the path exists, so a link inside a root
// pointing elsewhere is rejected. It returns the resolved path.
func Confine(path string, roots ...string) (string, error) {
	if path == "" {
		return "", errors.New("path is empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.New("path contains a null byte")
	}
	if len(roots) == 0 {
		return "", errors.New("no allowed directories")
	}

	resolved, err := resolve(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", Redact(path), err)
	}
	for _, root := range roots {
		r, err := resolve(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(r, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%s: %w", Redact(resolved), ErrOutside)
}

// resolve makes path absolute and evaluates symlinks in its deepest
// existing ancestor. Missing trailing components are kept as written.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var missing []string
	for cur := abs; ; {
		target, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{target}, missing...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}
