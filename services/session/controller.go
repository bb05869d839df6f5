// Package session keeps the single browsing session usable: before anything is
// read from a page, the controller walks it past anti-bot interstitials, rate
// limit walls and login prompts, or reports that the page could not be reached.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/cookiestore"
	"sahibinden-scraper/lib/statusstore"
	"sahibinden-scraper/lib/webpage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrTransientNavigation = errors.New("expected content did not load")
	ErrChallengeUnresolved = errors.New("challenge was not resolved")
	ErrRateLimitExceeded   = errors.New("still rate limited after retries")
	ErrSessionUnavailable  = errors.New("session could not be brought up")
)

// Driver is a single exclusive browsing session, only one navigation may be in
// flight at a time.
type Driver interface {
	Open(ctx context.Context) error
	Navigate(ctx context.Context, target string) (webpage.Page, error)
	Reload(ctx context.Context) (webpage.Page, error)
	// Current returns the page the session is on right now.
	Current() webpage.Page
	// DismissChallenge presses the acknowledgment control of an interstitial,
	// it returns false if the current page has none.
	DismissChallenge(ctx context.Context) (bool, error)
	SubmitOTP(ctx context.Context, code string) (webpage.Page, error)
	LoadCookies(cookies []cookiestore.Cookie) error
	ExportCookies() []cookiestore.Cookie
	Close() error
}

// Inspector classifies pages.
type Inspector interface {
	IsChallenge(page webpage.Page) bool
	IsRateLimited(page webpage.Page) bool
	IsLogin(page webpage.Page) bool
	HasOTPForm(page webpage.Page) bool
	HasContent(page webpage.Page, marker string) bool
}

type CookieStore interface {
	Load() ([]cookiestore.Cookie, error)
	Save(cookies []cookiestore.Cookie) error
	ModTime() (time.Time, error)
}

type OTPSource interface {
	Consume() (string, bool, error)
}

type StatusSink interface {
	Update(p statusstore.Patch) (statusstore.Status, error)
}

type Options struct {
	// ChallengeSettle is waited before pressing the interstitial control.
	ChallengeSettle time.Duration
	// ChallengeRecheck is waited after pressing it, before re-evaluating.
	ChallengeRecheck  time.Duration
	RateLimitChunk    time.Duration
	RateLimitAttempts int
	LoginPoll         time.Duration
	Heartbeat         time.Duration
	// MarkerWait is waited before the single reload given to a page that is
	// missing its expected content.
	MarkerWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		ChallengeSettle:   time.Second * 5,
		ChallengeRecheck:  time.Second * 8,
		RateLimitChunk:    time.Minute * 15,
		RateLimitAttempts: 2,
		LoginPoll:         time.Second * 5,
		Heartbeat:         time.Minute,
		MarkerWait:        time.Second * 3,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ChallengeSettle <= 0 {
		o.ChallengeSettle = d.ChallengeSettle
	}
	if o.ChallengeRecheck <= 0 {
		o.ChallengeRecheck = d.ChallengeRecheck
	}
	if o.RateLimitChunk <= 0 {
		o.RateLimitChunk = d.RateLimitChunk
	}
	if o.RateLimitAttempts <= 0 {
		o.RateLimitAttempts = d.RateLimitAttempts
	}
	if o.LoginPoll <= 0 {
		o.LoginPoll = d.LoginPoll
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = d.Heartbeat
	}
	if o.MarkerWait <= 0 {
		o.MarkerWait = d.MarkerWait
	}
	return o
}

type Deps struct {
	Driver    Driver
	Inspector Inspector
	Cookies   CookieStore
	OTP       OTPSource
	Status    StatusSink
	Clock     chrono.API
	Telemetry telemetry.API
}

type Controller struct {
	driver  Driver
	inspect Inspector
	cookies CookieStore
	otp     OTPSource
	status  StatusSink
	clock   chrono.API
	tel     telemetry.API
	opts    Options

	mu    sync.Mutex
	state State
	// opened is set once the driver is up and cleared by Close. A failed Open
	// leaves it unset so the next Ensure tries again.
	opened bool
	// cookiesSeen is the modification time of the last cookie snapshot loaded
	// into the driver, a snapshot newer than this is picked up while waiting
	// for login.
	cookiesSeen time.Time
}

func NewController(deps Deps, opts Options) *Controller {
	if deps.Clock == nil {
		deps.Clock = chrono.NewStandardImpl()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.SlogAPI{}
	}
	return &Controller{
		driver:  deps.Driver,
		inspect: deps.Inspector,
		cookies: deps.Cookies,
		otp:     deps.OTP,
		status:  deps.Status,
		clock:   deps.Clock,
		tel:     telemetry.NewScopedAPI("session", deps.Telemetry),
		opts:    opts.withDefaults(),
		state:   Uninitialized,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) transition(state State, message string) {
	c.mu.Lock()
	prev := c.state
	c.state = state
	c.mu.Unlock()

	c.tel.ReportDebug("transition", "from", prev.String(), "to", state.String(), "message", message)
	c.report(state, message)
}

func (c *Controller) report(state State, message string) {
	if c.status == nil {
		return
	}
	_, err := c.status.Update(statusstore.Patch{
		LoginWaiting: statusstore.Bool(state == LoginRequired || state == AwaitingOTP),
		Message:      statusstore.String(message),
	})
	if err != nil {
		c.tel.ReportWarning("controller.status", err)
	}
}

// Start brings the driver up and loads the persisted cookie snapshot, if any.
func (c *Controller) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Start")
	defer span.End()

	err := c.driver.Open(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open driver")
		c.transition(Failed, "could not start the browsing session")
		return fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()
	c.loadCookies()
	c.transition(Ready, "session ready")
	return nil
}

func (c *Controller) loadCookies() bool {
	if c.cookies == nil {
		return false
	}
	modTime, err := c.cookies.ModTime()
	if err != nil {
		c.tel.ReportWarning("controller.cookies-stat", err)
		return false
	}
	cookies, err := c.cookies.Load()
	if err != nil {
		c.tel.ReportWarning("controller.cookies-load", err)
		return false
	}

	c.mu.Lock()
	c.cookiesSeen = modTime
	c.mu.Unlock()

	if len(cookies) == 0 {
		return false
	}
	err = c.driver.LoadCookies(cookies)
	if err != nil {
		c.tel.ReportWarning("controller.cookies-load", err)
		return false
	}
	c.tel.ReportDebug("loaded cookie snapshot", "count", len(cookies))
	return true
}

func (c *Controller) persistCookies() {
	if c.cookies == nil {
		return
	}
	cookies := c.driver.ExportCookies()
	if len(cookies) == 0 {
		return
	}
	err := c.cookies.Save(cookies)
	if err != nil {
		c.tel.ReportWarning("controller.cookies-save", err)
		return
	}
	modTime, err := c.cookies.ModTime()
	if err == nil {
		c.mu.Lock()
		c.cookiesSeen = modTime
		c.mu.Unlock()
	}
}

// Close tears the driver down, the next Ensure brings it up again.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.state = Uninitialized
	c.opened = false
	c.mu.Unlock()
	return c.driver.Close()
}

// Ensure navigates to target and returns once the page shows content matching
// marker (a css selector, empty accepts any unblocked page).
//
// A returned error wraps one of ErrTransientNavigation, ErrChallengeUnresolved,
// ErrRateLimitExceeded or ErrSessionUnavailable, or is the context error. While
// the site asks for a login, Ensure blocks until the login completes or ctx is
// cancelled.
func (c *Controller) Ensure(ctx context.Context, target, marker string) (State, webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "Ensure")
	defer span.End()
	span.SetAttributes(attribute.String("target", target))

	c.mu.Lock()
	opened := c.opened
	c.mu.Unlock()
	if !opened {
		err := c.Start(ctx)
		if err != nil {
			return Failed, webpage.Page{}, err
		}
	}

	page, err := c.driver.Navigate(ctx, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		c.transition(Failed, fmt.Sprintf("navigation failed: %s", target))
		return Failed, webpage.Page{}, fmt.Errorf("%w: %w", ErrTransientNavigation, err)
	}

	state, page, err := c.resolve(ctx, target, marker, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "page not reachable")
	}
	span.SetAttributes(attribute.String("state", state.String()))
	return state, page, err
}

func (c *Controller) fail(state State, message string, err error) (State, webpage.Page, error) {
	c.transition(state, message)
	return state, webpage.Page{}, err
}

func (c *Controller) resolve(ctx context.Context, target, marker string, page webpage.Page) (State, webpage.Page, error) {
	challengeTried := false
	rateLimitTried := false
	reloaded := false

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(Failed, "stopped", err)
		}

		var err error
		switch {
		case c.inspect.IsRateLimited(page):
			if rateLimitTried {
				return c.fail(Failed, "rate limited, skipping", ErrRateLimitExceeded)
			}
			rateLimitTried = true
			page, err = c.waitRateLimit(ctx)
			if err != nil {
				return c.fail(Failed, "rate limited, skipping", err)
			}

		case c.inspect.IsChallenge(page):
			if challengeTried {
				return c.fail(ChallengePending, "challenge was not resolved", ErrChallengeUnresolved)
			}
			challengeTried = true
			page, err = c.solveChallenge(ctx)
			if err != nil {
				return c.fail(ChallengePending, "challenge was not resolved", fmt.Errorf("%w: %w", ErrChallengeUnresolved, err))
			}

		case c.inspect.IsLogin(page):
			page, err = c.awaitLogin(ctx, target, page)
			if err != nil {
				return c.fail(Failed, "login wait interrupted", err)
			}

		case c.inspect.HasContent(page, marker):
			if c.State() != Ready {
				c.transition(Ready, "page loaded")
			}
			return Ready, page, nil

		default:
			if reloaded {
				return c.fail(Failed, fmt.Sprintf("expected content missing: %s", target), ErrTransientNavigation)
			}
			reloaded = true
			err = c.clock.Sleep(ctx, c.opts.MarkerWait)
			if err != nil {
				return c.fail(Failed, "stopped", err)
			}
			page, err = c.driver.Reload(ctx)
			if err != nil {
				return c.fail(Failed, fmt.Sprintf("navigation failed: %s", target), fmt.Errorf("%w: %w", ErrTransientNavigation, err))
			}
		}
	}
}

// waitRateLimit waits out the rate limit wall in fixed chunks, reloading after
// each one. It gives up after the configured number of attempts.
func (c *Controller) waitRateLimit(ctx context.Context) (webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "waitRateLimit")
	defer span.End()

	var page webpage.Page
	for attempt := 1; attempt <= c.opts.RateLimitAttempts; attempt++ {
		c.transition(RateLimited, fmt.Sprintf(
			"rate limited, waiting %s (attempt %d/%d)",
			c.opts.RateLimitChunk, attempt, c.opts.RateLimitAttempts,
		))
		err := c.clock.Sleep(ctx, c.opts.RateLimitChunk)
		if err != nil {
			return webpage.Page{}, err
		}
		page, err = c.driver.Reload(ctx)
		if err != nil {
			return webpage.Page{}, fmt.Errorf("%w: %w", ErrTransientNavigation, err)
		}
		if !c.inspect.IsRateLimited(page) {
			c.tel.ReportInfo("rate limit cleared", "attempt", attempt)
			return page, nil
		}
	}
	c.tel.ReportWarning("controller.rate-limit", "attempts", c.opts.RateLimitAttempts)
	return page, ErrRateLimitExceeded
}

// solveChallenge waits for the interstitial to settle, presses its control if
// there is one and waits again. The resulting page is re-evaluated by the caller.
func (c *Controller) solveChallenge(ctx context.Context) (webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "solveChallenge")
	defer span.End()

	c.transition(ChallengePending, "challenge detected, waiting for it to settle")
	err := c.clock.Sleep(ctx, c.opts.ChallengeSettle)
	if err != nil {
		return webpage.Page{}, err
	}
	dismissed, err := c.driver.DismissChallenge(ctx)
	if err != nil {
		return webpage.Page{}, err
	}
	err = c.clock.Sleep(ctx, c.opts.ChallengeRecheck)
	if err != nil {
		return webpage.Page{}, err
	}
	if dismissed {
		return c.driver.Current(), nil
	}
	return c.driver.Reload(ctx)
}

// awaitLogin polls until the session is authenticated again, either by an OTP
// code submitted into the login form or by a fresher cookie snapshot. It has no
// deadline, only ctx ends it early.
func (c *Controller) awaitLogin(ctx context.Context, target string, page webpage.Page) (webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "awaitLogin")
	defer span.End()

	c.transition(LoginRequired, "login required, waiting for an otp code or a new cookie file")
	c.tel.ReportWarning("controller.login", "target", target)

	started := c.clock.Now()
	lastBeat := started
	for {
		if !c.inspect.IsLogin(page) {
			c.persistCookies()
			c.transition(Ready, "login completed")
			return page, nil
		}

		if c.inspect.HasOTPForm(page) && c.otp != nil {
			code, ok, err := c.otp.Consume()
			if err != nil {
				c.tel.ReportWarning("controller.otp-consume", err)
			}
			if ok {
				c.transition(AwaitingOTP, "submitting otp code")
				submitted, err := c.driver.SubmitOTP(ctx, code)
				if err != nil {
					c.tel.ReportWarning("controller.otp-submit", err)
					submitted = c.driver.Current()
				}
				if !c.inspect.IsLogin(submitted) {
					c.persistCookies()
					c.transition(Ready, "login completed")
					return c.navigate(ctx, target)
				}
				page = submitted
				c.report(AwaitingOTP, "otp code was not accepted, waiting for another one")
			}
		}

		if c.freshCookies() {
			if c.loadCookies() {
				reloaded, err := c.navigate(ctx, target)
				if err != nil {
					return webpage.Page{}, err
				}
				if !c.inspect.IsLogin(reloaded) {
					c.transition(Ready, "logged in with the new cookie file")
					return reloaded, nil
				}
				page = reloaded
				c.report(LoginRequired, "new cookie file did not log in, still waiting")
			}
		}

		now := c.clock.Now()
		if now.Sub(lastBeat) >= c.opts.Heartbeat {
			lastBeat = now
			c.report(c.State(), fmt.Sprintf(
				"waiting for login for %s",
				now.Sub(started).Round(time.Second),
			))
		}

		err := c.clock.Sleep(ctx, c.opts.LoginPoll)
		if err != nil {
			return webpage.Page{}, err
		}
		page = c.driver.Current()
	}
}

func (c *Controller) freshCookies() bool {
	if c.cookies == nil {
		return false
	}
	modTime, err := c.cookies.ModTime()
	if err != nil || modTime.IsZero() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return modTime.After(c.cookiesSeen)
}

func (c *Controller) navigate(ctx context.Context, target string) (webpage.Page, error) {
	page, err := c.driver.Navigate(ctx, target)
	if err != nil {
		return webpage.Page{}, fmt.Errorf("%w: %w", ErrTransientNavigation, err)
	}
	return page, nil
}
