package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/appconfig"
	"sahibinden-scraper/lib/cookiestore"
	"sahibinden-scraper/lib/decisionstore"
	"sahibinden-scraper/lib/ledger"
	"sahibinden-scraper/lib/lockfile"
	"sahibinden-scraper/lib/notify"
	"sahibinden-scraper/lib/otpstore"
	"sahibinden-scraper/lib/restyutil"
	"sahibinden-scraper/lib/scrapers/sahibinden"
	"sahibinden-scraper/lib/statusstore"
	"sahibinden-scraper/services/cycle"
	"sahibinden-scraper/services/session"
)

type appOptions struct {
	// DryRun logs accepted listings instead of emailing them.
	DryRun          bool
	RequestInterval time.Duration
	// DumpDir, if set, receives a file per http exchange.
	DumpDir string
}

// app holds everything a crawling process needs, built from the data directory.
type app struct {
	paths Paths
	tel   telemetry.API
	lock  *lockfile.Lock

	ledger    *ledger.Ledger
	cookies   cookiestore.Store
	otp       otpstore.Store
	status    *statusstore.Store
	db        *sql.DB
	decisions *decisionstore.Store

	session      *session.Controller
	orchestrator *cycle.Orchestrator
}

func (a *app) loadConfig() (appconfig.Config, error) {
	cfg, err := appconfig.Load(a.paths.Config)
	if err != nil {
		if _, statErr := os.Stat(a.paths.Config); errors.Is(statErr, os.ErrNotExist) {
			// running without a configuration file is a supported setup.
			return cfg, nil
		}
	}
	return cfg, err
}

func newApp(ctx context.Context, paths Paths, opts appOptions) (*app, error) {
	err := os.MkdirAll(paths.Dir, 0o755)
	if err != nil {
		return nil, err
	}
	lock, err := lockfile.Acquire(paths.Lock)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", paths.Dir, err)
	}

	a := &app{
		paths:   paths,
		tel:     telemetry.SlogAPI{},
		lock:    lock,
		cookies: cookiestore.New(paths.Cookies),
		otp:     otpstore.New(paths.OTP),
		status:  statusstore.New(paths.Status, nil),
	}
	err = a.build(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(opts appOptions) error {
	var err error
	a.ledger, err = ledger.Open(a.paths.Ledger)
	if err != nil {
		return err
	}

	a.db, err = decisionstore.OpenDB(a.paths.Decisions)
	if err != nil {
		// the decision history is informational, crawling goes on without it.
		a.tel.ReportWarning("app.decisions", "dsn", a.paths.Decisions, "err", err)
		a.db = nil
	} else {
		store := decisionstore.NewStore(a.db)
		a.decisions = &store
	}

	clientOpts := sahibinden.ClientOptions{
		BaseUrl:            os.Getenv("SAHIBINDEN_BASE_URL"),
		MinRequestInterval: opts.RequestInterval,
		Telemetry:          a.tel,
	}
	if opts.DumpDir != "" {
		dump, err := restyutil.NewFilesystemOutput(opts.DumpDir)
		if err != nil {
			return fmt.Errorf("prepare dump dir: %w", err)
		}
		clientOpts.Dump = dump
	}
	client, err := sahibinden.NewClient(clientOpts)
	if err != nil {
		return err
	}
	a.session = session.NewController(session.Deps{
		Driver:    client,
		Inspector: sahibinden.NewInspector(client.AuthUrl.Hostname()),
		Cookies:   a.cookies,
		OTP:       a.otp,
		Status:    a.status,
		Clock:     chrono.NewStandardImpl(),
		Telemetry: a.tel,
	}, session.DefaultOptions())

	var notifier cycle.Notifier = notify.NewLogNotifier(a.tel)
	emailOpts := notify.EmailOptionsFromEnv()
	if !opts.DryRun && emailOpts.Complete() {
		notifier = notify.NewEmailNotifier(emailOpts, a.tel, nil)
	} else if !opts.DryRun {
		a.tel.ReportWarning("app.notifier", "email settings are incomplete, accepted listings are only logged")
	}

	cycleOpts := cycle.DefaultOptions()
	cycleOpts.AcceptedPath = a.paths.Accepted
	deps := cycle.Deps{
		Session:   a.session,
		Extractor: sahibinden.NewParser(client.BaseUrl),
		Ledger:    a.ledger,
		Notifier:  notifier,
		Status:    a.status,
		Config:    a.loadConfig,
		Clock:     chrono.NewStandardImpl(),
		Telemetry: a.tel,
	}
	if a.decisions != nil {
		deps.Decisions = a.decisions
	}
	a.orchestrator, err = cycle.NewOrchestrator(deps, cycleOpts)
	return err
}

func (a *app) Close() {
	if a.session != nil {
		err := a.session.Close()
		if err != nil {
			a.tel.ReportWarning("app.close", "session", err)
		}
	}
	if a.ledger != nil {
		err := a.ledger.Save()
		if err != nil {
			a.tel.ReportBroken("app.close", "ledger", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	_, err := a.status.Update(statusstore.Patch{Running: statusstore.Bool(false)})
	if err != nil {
		a.tel.ReportWarning("app.close", "status", err)
	}
	err = a.lock.Release()
	if err != nil {
		a.tel.ReportWarning("app.close", "lock", err)
	}
}
