// Package logging provides leveled logging and expansion tracing for plexsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - An ExpansionLogger for structured JSONL traces of network expansion
//     (<outdir>/expansion.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExpansionFile is the name of the JSONL trace inside the output directory.
const ExpansionFile = "expansion.jsonl"

// LevelTrace is a custom slog level below Debug. At this level every
// executed event and every feature response is logged.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ExpansionLogger writes structured expansion events to a JSONL file.
// It is safe for concurrent use. A nil ExpansionLogger is safe to use;
// all methods are no-ops on nil receiver.
type ExpansionLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewExpansionLogger creates an expansion logger writing to dir/expansion.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened. All methods are nil-safe.
func NewExpansionLogger(dir string, level string) *ExpansionLogger {
	lvl := ParseLevel(level)
	if lvl == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, ExpansionFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &ExpansionLogger{file: f}
}

// Log writes an expansion event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (el *ExpansionLogger) Log(event map[string]any) {
	if el == nil || el.file == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	el.mu.Lock()
	defer el.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = el.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (el *ExpansionLogger) Close() {
	if el == nil || el.file == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	el.file.Close()
	el.file = nil
}

// RuleFired records a rule response that produced a reaction.
func (el *ExpansionLogger) RuleFired(rule, trigger, reaction string, depth int) {
	el.Log(map[string]any{
		"event":    "rule_fired",
		"rule":     rule,
		"trigger":  trigger,
		"reaction": reaction,
		"depth":    depth,
	})
}

// SpeciesCreated records a newly interned species.
func (el *ExpansionLogger) SpeciesCreated(tag string, family int, name string) {
	el.Log(map[string]any{
		"event":   "species_created",
		"species": tag,
		"family":  family,
		"name":    name,
	})
}

// ReactionCreated records a newly interned reaction.
func (el *ExpansionLogger) ReactionCreated(tag, generator string, rate float64) {
	el.Log(map[string]any{
		"event":     "reaction_created",
		"reaction":  tag,
		"generator": generator,
		"rate":      rate,
	})
}

// NotifySkipped records a notification that was a no-op.
func (el *ExpansionLogger) NotifySkipped(tag string, depth int, reason string) {
	el.Log(map[string]any{
		"event":   "notify_skipped",
		"species": tag,
		"depth":   depth,
		"reason":  reason,
	})
}

// GenerationDisabled records the point where expansion was frozen.
func (el *ExpansionLogger) GenerationDisabled(simTime float64) {
	el.Log(map[string]any{
		"event":    "generation_disabled",
		"sim_time": simTime,
	})
}
