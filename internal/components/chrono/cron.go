package chrono

import (
	"fmt"
	"time"

	"sahibinden-scraper/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

type EntryID = cron.EntryID

// CronAPI is the interface that anything depending on things to happen periodically should use.
type CronAPI interface {
	Every(interval time.Duration, callback func()) (EntryID, error)
	Remove(id EntryID)
}

// StandardCron is the standard implementation of CronAPI using `github.com/robfig/cron/v3`
type StandardCron struct {
	cron *cron.Cron
}

// NewStandardCron is the constructor of StandardCron, the returned cron is already started.
//
// Jobs that are still running when the next tick fires are skipped rather than stacked.
func NewStandardCron(tel telemetry.API) StandardCron {
	logger := cronLogger{tel: tel}
	cronner := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	cronner.Start()

	return StandardCron{
		cron: cronner,
	}
}

func (s StandardCron) Every(interval time.Duration, callback func()) (EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("invalid interval %s", interval)
	}
	return s.cron.Schedule(cron.Every(interval), cron.FuncJob(callback)), nil
}

func (s StandardCron) Remove(id EntryID) {
	s.cron.Remove(id)
}

// Stop stops scheduling new jobs and waits for running ones to finish.
func (s StandardCron) Stop() {
	<-s.cron.Stop().Done()
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i < len(keysAndValues)/2; i++ {
		idx := i * 2
		key := keysAndValues[idx]
		value := keysAndValues[idx+1]
		params = append(params, fmt.Sprintf("%v: %v", key, value))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(
		fmt.Sprintf("cron: %s", msg),
		l.formatParams(keysAndValues)...,
	)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
