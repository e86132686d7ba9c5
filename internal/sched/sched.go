// Package sched is the discrete-event scheduler: a queue of pending events
// ordered by simulation time and the loop that executes them.
package sched

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nvandessel/plexsim/internal/fault"
	"github.com/nvandessel/plexsim/internal/logging"
)

// Never is the time of an event that can never fire.
var Never = math.Inf(1)

// ErrPastTime is returned when an event is scheduled before the current time.
var ErrPastTime = errors.New("event scheduled in the past")

// Signal tells the run loop whether to keep going.
type Signal int

const (
	// Continue resumes the loop.
	Continue Signal = iota
	// Stop ends the current Run. The simulation can be resumed.
	Stop
)

// Item is the scheduling state of an event. Embed it in every event type.
type Item struct {
	time  float64
	seq   uint64
	index int
	// queued is false for the zero Item, so index 0 is unambiguous.
	queued bool
}

func (it *Item) item() *Item { return it }

// Time returns the time the event is scheduled for.
func (it *Item) Time() float64 { return it.time }

// Scheduled reports whether the event is in a queue.
func (it *Item) Scheduled() bool { return it.queued }

// Event is something that happens at a point in simulation time.
type Event interface {
	Execute(ctx context.Context, s *Scheduler) (Signal, error)
	item() *Item
}

// Hook runs before the scheduler gives up with a fault, typically to write
// a checkpoint.
type Hook func(ctx context.Context, s *Scheduler) error

// Scheduler holds the event queue and the simulation clock.
type Scheduler struct {
	queue    queue
	now      float64
	seq      uint64
	executed int64

	deadline  time.Time
	clock     func() time.Time
	onTimeout Hook
	onFault   Hook
	logger    *slog.Logger
}

// New creates a scheduler at time zero.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{clock: time.Now, logger: logger}
}

// Now returns the current simulation time.
func (s *Scheduler) Now() float64 { return s.now }

// Len returns the number of queued events.
func (s *Scheduler) Len() int { return len(s.queue) }

// Executed returns the number of events executed so far.
func (s *Scheduler) Executed() int64 { return s.executed }

// Peek returns the next event without removing it.
func (s *Scheduler) Peek() (Event, bool) {
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

// SetDeadline sets the wall-clock time after which Run fails with a
// timeout fault. The zero time disables the guard.
func (s *Scheduler) SetDeadline(t time.Time) { s.deadline = t }

// SetClock replaces the wall clock used by the deadline guard.
func (s *Scheduler) SetClock(clock func() time.Time) { s.clock = clock }

// OnTimeout sets the hook run before a timeout fault is returned.
func (s *Scheduler) OnTimeout(h Hook) { s.onTimeout = h }

// OnFault sets the hook run before an exhausted-queue fault is returned.
func (s *Scheduler) OnFault(h Hook) { s.onFault = h }

// Schedule queues e at time t, first removing it if it is already queued.
func (s *Scheduler) Schedule(e Event, t float64) error {
	if math.IsNaN(t) {
		return fmt.Errorf("%w: time is NaN", ErrPastTime)
	}
	if t < s.now {
		return fmt.Errorf("%w: %g < now %g", ErrPastTime, t, s.now)
	}
	s.Deschedule(e)
	it := e.item()
	it.time = t
	it.seq = s.seq
	it.queued = true
	s.seq++
	heap.Push(&s.queue, e)
	return nil
}

// Deschedule removes e from the queue. It is a no-op when e is not queued.
func (s *Scheduler) Deschedule(e Event) {
	it := e.item()
	if !it.queued {
		return
	}
	heap.Remove(&s.queue, it.index)
	it.queued = false
}

// Scheduled reports whether e is queued.
func (s *Scheduler) Scheduled(e Event) bool { return e.item().queued }

// Run executes events in time order until one returns Stop, an event fails,
// the queue runs dry, the deadline passes or ctx is cancelled. Events that
// share a time run in the order they were scheduled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(s.queue) == 0 {
			s.runHook(ctx, s.onFault, "exhausted")
			return fault.Exhaustedf("event queue is empty at time %g", s.now)
		}
		if !s.deadline.IsZero() && s.clock().After(s.deadline) {
			s.runHook(ctx, s.onTimeout, "timeout")
			return fault.Timeoutf("wall-clock deadline passed at simulation time %g after %d events",
				s.now, s.executed)
		}

		next := s.queue[0]
		t := next.item().time
		if t < s.now {
			fault.Invariantf("scheduler", "event at %g precedes current time %g", t, s.now)
		}
		if math.IsInf(t, 1) {
			fault.Invariantf("scheduler", "an event scheduled for never reached the head of the queue")
		}

		heap.Pop(&s.queue)
		next.item().queued = false
		s.now = t

		s.logger.Log(ctx, logging.LevelTrace, "event", "time", t, "type", fmt.Sprintf("%T", next))
		sig, err := next.Execute(ctx, s)
		s.executed++
		if err != nil {
			return err
		}
		if sig == Stop {
			return nil
		}
	}
}

func (s *Scheduler) runHook(ctx context.Context, h Hook, reason string) {
	if h == nil {
		return
	}
	if err := h(ctx, s); err != nil {
		s.logger.Warn("fault hook failed", "reason", reason, "error", err)
	}
}

// queue is a binary heap ordered by (time, sequence).
type queue []Event

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	a, b := q[i].item(), q[j].item()
	if a.time != b.time {
		return a.time < b.time
	}
	return a.seq < b.seq
}

func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].item().index = i
	q[j].item().index = j
}

func (q *queue) Push(x any) {
	e := x.(Event)
	e.item().index = len(*q)
	*q = append(*q, e)
}

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.item().index = -1
	*q = old[:n-1]
	return e
}
