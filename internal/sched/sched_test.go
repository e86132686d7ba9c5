package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/plexsim/internal/fault"
)

// recordEvent appends its name to a shared log when executed.
type recordEvent struct {
	Item
	name string
	log  *[]string
	sig  Signal
	err  error
	then func(s *Scheduler)
}

func (e *recordEvent) Execute(_ context.Context, s *Scheduler) (Signal, error) {
	*e.log = append(*e.log, e.name)
	if e.then != nil {
		e.then(s)
	}
	return e.sig, e.err
}

func newEvent(name string, log *[]string) *recordEvent {
	return &recordEvent{name: name, log: log}
}

func stopAt(s *Scheduler, t float64, log *[]string) {
	stop := newEvent("stop", log)
	stop.sig = Stop
	if err := s.Schedule(stop, t); err != nil {
		panic(err)
	}
}

func TestRunOrdersByTimeThenScheduling(t *testing.T) {
	var log []string
	s := New(nil)

	require.NoError(t, s.Schedule(newEvent("c", &log), 3))
	require.NoError(t, s.Schedule(newEvent("a1", &log), 1))
	require.NoError(t, s.Schedule(newEvent("b", &log), 2))
	require.NoError(t, s.Schedule(newEvent("a2", &log), 1))
	stopAt(s, 10, &log)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a1", "a2", "b", "c", "stop"}, log)
	assert.Equal(t, 10.0, s.Now())
	assert.EqualValues(t, 5, s.Executed())
	assert.Zero(t, s.Len())
}

func TestScheduleRejectsPastTimes(t *testing.T) {
	var log []string
	s := New(nil)
	stopAt(s, 5, &log)
	require.NoError(t, s.Run(context.Background()))

	err := s.Schedule(newEvent("late", &log), 4)
	assert.ErrorIs(t, err, ErrPastTime)
	assert.NoError(t, s.Schedule(newEvent("now", &log), 5))
}

func TestRescheduleMovesEvent(t *testing.T) {
	var log []string
	s := New(nil)
	e := newEvent("moved", &log)

	require.NoError(t, s.Schedule(e, 1))
	require.NoError(t, s.Schedule(newEvent("fixed", &log), 2))
	require.NoError(t, s.Schedule(e, 3))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 3.0, e.Time())
	stopAt(s, 4, &log)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"fixed", "moved", "stop"}, log)
}

func TestDeschedule(t *testing.T) {
	var log []string
	s := New(nil)
	a := newEvent("a", &log)
	b := newEvent("b", &log)

	require.NoError(t, s.Schedule(a, 1))
	require.NoError(t, s.Schedule(b, 2))
	assert.True(t, s.Scheduled(a))

	s.Deschedule(a)
	assert.False(t, s.Scheduled(a))
	assert.False(t, a.Scheduled())
	s.Deschedule(a) // no-op

	next, ok := s.Peek()
	require.True(t, ok)
	assert.Same(t, b, next)
}

func TestRunExhaustedQueue(t *testing.T) {
	var log []string
	s := New(nil)
	require.NoError(t, s.Schedule(newEvent("only", &log), 1))

	hooked := false
	s.OnFault(func(context.Context, *Scheduler) error {
		hooked = true
		return nil
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Exhausted))
	assert.True(t, hooked)
	assert.Equal(t, []string{"only"}, log)
}

func TestRunDeadline(t *testing.T) {
	var log []string
	s := New(nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	s.SetDeadline(now.Add(time.Minute))

	tick := newEvent("tick", &log)
	tick.then = func(s *Scheduler) {
		now = now.Add(45 * time.Second)
		if err := s.Schedule(tick, s.Now()+1); err != nil {
			panic(err)
		}
	}
	require.NoError(t, s.Schedule(tick, 0))

	var hookTime float64
	s.OnTimeout(func(_ context.Context, s *Scheduler) error {
		hookTime = s.Now()
		return errors.New("hook failures are only logged")
	})

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Timeout))
	assert.Equal(t, []string{"tick", "tick"}, log)
	assert.Equal(t, 1.0, hookTime)
	assert.True(t, tick.Scheduled(), "state survives the timeout")
}

func TestRunStopsAndResumes(t *testing.T) {
	var log []string
	s := New(nil)
	require.NoError(t, s.Schedule(newEvent("a", &log), 1))
	stopAt(s, 2, &log)
	require.NoError(t, s.Schedule(newEvent("b", &log), 3))
	stopAt(s, 4, &log)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a", "stop"}, log)
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, []string{"a", "stop", "b", "stop"}, log)
}

func TestRunPropagatesEventErrors(t *testing.T) {
	var log []string
	s := New(nil)
	boom := errors.New("boom")
	e := newEvent("bad", &log)
	e.err = boom
	require.NoError(t, s.Schedule(e, 1))

	assert.ErrorIs(t, s.Run(context.Background()), boom)
}

func TestRunHonoursContext(t *testing.T) {
	var log []string
	s := New(nil)
	require.NoError(t, s.Schedule(newEvent("a", &log), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Empty(t, log)
}

func TestNeverEventAtHeadPanics(t *testing.T) {
	var log []string
	s := New(nil)
	require.NoError(t, s.Schedule(newEvent("never", &log), Never))

	var err error
	func() {
		defer fault.Recover(&err)
		_ = s.Run(context.Background())
	}()
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Invariant))
}
