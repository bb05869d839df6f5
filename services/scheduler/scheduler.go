// Package scheduler runs cycles on an interval and on demand, never more than
// one at a time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/services/cycle"
)

var (
	ErrCycleRunning   = errors.New("a cycle is already running")
	ErrAlreadyStarted = errors.New("scheduler is already started")
)

type Runner interface {
	Run(ctx context.Context) (cycle.Result, error)
	RequestStop()
}

type Scheduler struct {
	runner Runner
	cron   chrono.CronAPI
	tel    telemetry.API

	// slot holds a token while a cycle runs, it is shared by the interval and
	// the on-demand trigger.
	slot chan struct{}
	wg   sync.WaitGroup

	mu        sync.Mutex
	entry     chrono.EntryID
	scheduled bool
	interval  time.Duration
	last      *cycle.Result
}

func New(runner Runner, cron chrono.CronAPI, tel telemetry.API) *Scheduler {
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	return &Scheduler{
		runner: runner,
		cron:   cron,
		tel:    telemetry.NewScopedAPI("scheduler", tel),
		slot:   make(chan struct{}, 1),
	}
}

func (s *Scheduler) claim() bool {
	select {
	case s.slot <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) release() {
	<-s.slot
}

// run expects the slot to be claimed.
func (s *Scheduler) run(ctx context.Context) (cycle.Result, error) {
	defer s.release()

	result, err := s.runner.Run(ctx)
	s.mu.Lock()
	s.last = &result
	s.mu.Unlock()
	if err != nil {
		s.tel.ReportBroken("scheduler.cycle", err, "cycle", result.ID)
	}
	return result, err
}

// TryRun runs one cycle in the calling goroutine, it fails with ErrCycleRunning
// if another cycle holds the slot.
func (s *Scheduler) TryRun(ctx context.Context) (cycle.Result, error) {
	if !s.claim() {
		return cycle.Result{}, ErrCycleRunning
	}
	return s.run(ctx)
}

// TriggerAsync claims the slot and runs one cycle in the background.
func (s *Scheduler) TriggerAsync(ctx context.Context) error {
	if !s.claim() {
		return ErrCycleRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

// Start runs a cycle right away and then one every interval. Ticks that land
// while a cycle is running are skipped.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduled {
		return ErrAlreadyStarted
	}

	entry, err := s.cron.Every(interval, func() {
		if ctx.Err() != nil {
			return
		}
		_, err := s.TryRun(ctx)
		if errors.Is(err, ErrCycleRunning) {
			s.tel.ReportWarning("scheduler.tick", "skipped, a cycle is already running")
		}
	})
	if err != nil {
		return err
	}
	s.entry = entry
	s.scheduled = true
	s.interval = interval
	s.tel.ReportInfo("started", "interval", interval.String())

	err = s.TriggerAsync(ctx)
	if errors.Is(err, ErrCycleRunning) {
		s.tel.ReportWarning("scheduler.start", "initial cycle skipped, a cycle is already running")
	}
	return nil
}

// Stop removes the interval and asks the running cycle, if any, to stop early.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.scheduled {
		s.cron.Remove(s.entry)
		s.scheduled = false
		s.tel.ReportInfo("stopped")
	}
	s.mu.Unlock()

	if s.Running() {
		s.runner.RequestStop()
	}
}

// Wait blocks until every cycle started by TriggerAsync has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) Running() bool {
	return len(s.slot) > 0
}

func (s *Scheduler) Scheduled() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval, s.scheduled
}

// Last returns the result of the most recently finished cycle.
func (s *Scheduler) Last() (cycle.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return cycle.Result{}, false
	}
	return *s.last, true
}
