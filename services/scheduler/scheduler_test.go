package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/services/cycle"

	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
	stops   atomic.Int32
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(ctx context.Context) (cycle.Result, error) {
	n := r.runs.Add(1)
	r.started <- struct{}{}
	<-r.release
	return cycle.Result{ID: string(rune('a' + n - 1))}, r.err
}

func (r *blockingRunner) RequestStop() {
	r.stops.Add(1)
}

type fakeCron struct {
	mu        sync.Mutex
	callbacks map[chrono.EntryID]func()
	intervals map[chrono.EntryID]time.Duration
	next      chrono.EntryID
}

func newFakeCron() *fakeCron {
	return &fakeCron{
		callbacks: map[chrono.EntryID]func(){},
		intervals: map[chrono.EntryID]time.Duration{},
	}
}

func (c *fakeCron) Every(interval time.Duration, callback func()) (chrono.EntryID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.callbacks[c.next] = callback
	c.intervals[c.next] = interval
	return c.next, nil
}

func (c *fakeCron) Remove(id chrono.EntryID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.callbacks, id)
	delete(c.intervals, id)
}

func (c *fakeCron) tick() {
	c.mu.Lock()
	var callbacks []func()
	for _, cb := range c.callbacks {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
}

func waitStarted(t *testing.T, r *blockingRunner) {
	t.Helper()
	select {
	case <-r.started:
	case <-time.After(time.Second * 5):
		t.Fatal("cycle did not start")
	}
}

func TestSingleSlot(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, newFakeCron(), &telemetry.Recorder{})
	ctx := context.Background()

	require.NoError(t, s.TriggerAsync(ctx))
	waitStarted(t, runner)
	require.True(t, s.Running())

	// a second trigger is rejected, not queued
	require.ErrorIs(t, s.TriggerAsync(ctx), ErrCycleRunning)
	_, err := s.TryRun(ctx)
	require.ErrorIs(t, err, ErrCycleRunning)

	close(runner.release)
	s.Wait()
	require.False(t, s.Running())
	require.Equal(t, int32(1), runner.runs.Load())

	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, "a", last.ID)

	result, err := s.TryRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", result.ID)
}

func TestStartRunsImmediatelyThenOnInterval(t *testing.T) {
	runner := newBlockingRunner()
	cron := newFakeCron()
	tel := &telemetry.Recorder{}
	s := New(runner, cron, tel)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx, time.Minute*30))
	require.ErrorIs(t, s.Start(ctx, time.Minute), ErrAlreadyStarted)
	waitStarted(t, runner)

	interval, scheduled := s.Scheduled()
	require.True(t, scheduled)
	require.Equal(t, time.Minute*30, interval)
	require.Equal(t, time.Minute*30, cron.intervals[1])

	// a tick during the initial cycle is skipped
	cron.tick()
	require.True(t, tel.Has(telemetry.LevelWarning, "scheduler.tick"))
	require.Equal(t, int32(1), runner.runs.Load())

	close(runner.release)
	s.Wait()

	cron.tick()
	require.Equal(t, int32(2), runner.runs.Load())

	s.Stop()
	_, scheduled = s.Scheduled()
	require.False(t, scheduled)
	require.Empty(t, cron.callbacks)
	require.Zero(t, runner.stops.Load())
}

func TestStopRequestsActiveCycleStop(t *testing.T) {
	runner := newBlockingRunner()
	s := New(runner, newFakeCron(), &telemetry.Recorder{})

	require.NoError(t, s.Start(context.Background(), time.Minute))
	waitStarted(t, runner)

	s.Stop()
	require.Equal(t, int32(1), runner.stops.Load())
	close(runner.release)
	s.Wait()
}

func TestCycleErrorIsReported(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("session could not be brought up")
	close(runner.release)
	tel := &telemetry.Recorder{}
	s := New(runner, newFakeCron(), tel)

	_, err := s.TryRun(context.Background())
	require.Error(t, err)
	require.True(t, tel.Has(telemetry.LevelBroken, "scheduler.cycle"))
	require.False(t, s.Running())
}
