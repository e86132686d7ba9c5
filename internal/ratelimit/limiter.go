// Package ratelimit throttles MCP tool calls with token buckets.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Bucket is a token bucket. It starts full and refills continuously at
// Rate tokens per second up to Burst. It is safe for concurrent use.
type Bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	now    func() time.Time
}

// NewBucket returns a full bucket refilling at rate tokens per second.
func NewBucket(rate float64, burst int) *Bucket {
	return &Bucket{rate: rate, burst: float64(burst), tokens: float64(burst), now: time.Now}
}

// Take removes one token. It reports false when the bucket is empty.
func (b *Bucket) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if !b.last.IsZero() {
		if dt := now.Sub(b.last).Seconds(); dt > 0 {
			b.tokens = min(b.burst, b.tokens+b.rate*dt)
		}
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tools holds one bucket per tool name.
type Tools map[string]*Bucket

// DefaultTools returns the limits of the plexsim MCP tools. Listing tools
// are cheap; graph rendering and validation scan the whole network.
func DefaultTools() Tools {
	return Tools{
		"network_runs":       NewBucket(1, 10),      // 60/minute
		"network_summary":    NewBucket(1, 10),      // 60/minute
		"list_species":       NewBucket(1, 10),      // 60/minute
		"list_reactions":     NewBucket(1, 10),      // 60/minute
		"network_validate":   NewBucket(10.0/60, 3), // 10/minute
		"network_graph":      NewBucket(30.0/60, 5), // 30/minute
		"checkpoint_list":    NewBucket(30.0/60, 5), // 30/minute
		"checkpoint_inspect": NewBucket(10.0/60, 3), // 10/minute
	}
}

// Check takes a token for tool. Tools without a bucket are unlimited.
func (t Tools) Check(tool string) error {
	b, ok := t[tool]
	if !ok || b.Take() {
		return nil
	}
	return fmt.Errorf("rate limit exceeded for %s, please try again shortly", tool)
}
