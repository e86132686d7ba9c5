package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	filePrefix = "plexsim-checkpoint-"
	fileSuffix = ".ckpt.gz"
)

// Info holds the metadata retention decisions are made on.
type Info struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Policy decides which checkpoints to keep. Input is sorted newest first.
type Policy interface {
	Apply(checkpoints []Info) (keep []Info)
}

// CountPolicy keeps the N most recent checkpoints.
type CountPolicy struct {
	MaxCount int
}

func (p *CountPolicy) Apply(checkpoints []Info) []Info {
	if len(checkpoints) <= p.MaxCount {
		return checkpoints
	}
	return checkpoints[:p.MaxCount]
}

// AgePolicy keeps checkpoints newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *AgePolicy) Apply(checkpoints []Info) []Info {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, c := range checkpoints {
		if c.CreatedAt.After(cutoff) {
			keep = append(keep, c)
		}
	}
	return keep
}

// CompositePolicy keeps a checkpoint if any sub-policy keeps it.
type CompositePolicy struct {
	Policies []Policy
}

func (p *CompositePolicy) Apply(checkpoints []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, c := range policy.Apply(checkpoints) {
			kept[c.Path] = true
		}
	}
	var result []Info
	for _, c := range checkpoints {
		if kept[c.Path] {
			result = append(result, c)
		}
	}
	return result
}

func isCheckpointFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix)
}

// List scans dir for checkpoint files and returns them newest first. A
// missing directory has no checkpoints.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !isCheckpointFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info := Info{
			Path:      filepath.Join(dir, e.Name()),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		}
		if h, err := ReadHeader(info.Path); err == nil && !h.CreatedAt.IsZero() {
			info.CreatedAt = h.CreatedAt
		}
		out = append(out, info)
	}

	// The timestamp is embedded in the name.
	sort.Slice(out, func(i, j int) bool {
		return filepath.Base(out[i].Path) > filepath.Base(out[j].Path)
	})
	return out, nil
}

// Prune deletes the checkpoints in dir that policy does not keep.
func Prune(dir string, policy Policy) (deleted []string, err error) {
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool)
	for _, c := range policy.Apply(all) {
		keep[c.Path] = true
	}
	for _, c := range all {
		if keep[c.Path] {
			continue
		}
		if err := os.Remove(c.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(c.Path), err)
		}
		deleted = append(deleted, c.Path)
	}
	return deleted, nil
}

// ParseDuration parses durations like "30d", "2w" or "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}
