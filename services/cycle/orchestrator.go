// Package cycle runs one sweep over the configured brands: it walks every
// listing page, evaluates each new listing's damage report and hands the
// accepted ones to the notifier.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"sahibinden-scraper/internal/components/chrono"
	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/appconfig"
	"sahibinden-scraper/lib/decisionstore"
	"sahibinden-scraper/lib/fsutil"
	"sahibinden-scraper/lib/listing"
	"sahibinden-scraper/lib/statusstore"
	"sahibinden-scraper/lib/webpage"
	"sahibinden-scraper/services/filter"
	"sahibinden-scraper/services/session"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

type Session interface {
	Ensure(ctx context.Context, target, marker string) (session.State, webpage.Page, error)
}

type Extractor interface {
	ParseListingRows(page webpage.Page, brand string) []listing.Item
	// ParseDamageReport returns listing.ErrExtractionAbsent when the page has
	// no damage section.
	ParseDamageReport(page webpage.Page) (listing.DamageReport, error)
}

type Ledger interface {
	filter.Ledger
	Len() int
	Save() error
}

type Notifier interface {
	// Send returns false if the batch could not be delivered.
	Send(ctx context.Context, batch []listing.Item) bool
}

type DecisionRecorder interface {
	Record(ctx context.Context, d decisionstore.Decision) error
}

type StatusSink interface {
	Update(p statusstore.Patch) (statusstore.Status, error)
}

// ConfigSource returns the configuration for a cycle. An error is reported but
// the returned configuration (defaults, usually) is still used.
type ConfigSource func() (appconfig.Config, error)

// Result describes a finished cycle.
type Result struct {
	ID             string         `json:"id"`
	Accepted       []listing.Item `json:"accepted"`
	ProcessedCount int            `json:"processed_count"`
	StartedAt      time.Time      `json:"started_at"`
	EndedAt        time.Time      `json:"ended_at"`
}

type Options struct {
	// ListingMarker must match on a listing page for it to count as loaded.
	ListingMarker string
	// DetailMarker must match on a detail page, empty accepts any unblocked page.
	DetailMarker string
	DelayMin     time.Duration
	DelayMax     time.Duration
	// AcceptedPath is where the accepted batch of the last cycle is written,
	// empty disables it.
	AcceptedPath string
}

func DefaultOptions() Options {
	return Options{
		ListingMarker: "tr.searchResultsItem",
		DelayMin:      time.Second * 3,
		DelayMax:      time.Second * 7,
	}
}

type Deps struct {
	Session   Session
	Extractor Extractor
	Ledger    Ledger
	Notifier  Notifier
	// Decisions is optional.
	Decisions DecisionRecorder
	Status    StatusSink
	Config    ConfigSource
	Clock     chrono.API
	Telemetry telemetry.API
	// Jitter returns a delay in [lo, hi], it defaults to a uniform random pick.
	Jitter func(lo, hi time.Duration) time.Duration
}

type Orchestrator struct {
	deps Deps
	opts Options
	tel  telemetry.API

	decisionCounter metric.Int64Counter
	stop            atomic.Bool
}

func uniformJitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	defaults := DefaultOptions()
	if opts.ListingMarker == "" {
		opts.ListingMarker = defaults.ListingMarker
	}
	if opts.DelayMin <= 0 && opts.DelayMax <= 0 {
		opts.DelayMin = defaults.DelayMin
		opts.DelayMax = defaults.DelayMax
	}
	if opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("delay max (%s) is less than delay min (%s)", opts.DelayMax, opts.DelayMin)
	}

	if deps.Clock == nil {
		deps.Clock = chrono.NewStandardImpl()
	}
	if deps.Jitter == nil {
		deps.Jitter = uniformJitter
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.SlogAPI{}
	}
	if deps.Config == nil {
		deps.Config = func() (appconfig.Config, error) {
			return appconfig.Default(), nil
		}
	}

	decisionCounter, err := meter.Int64Counter(
		"cycle_decisions_total",
		metric.WithDescription("The total amount of listings evaluated, by outcome."),
	)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		deps:            deps,
		opts:            opts,
		tel:             telemetry.NewScopedAPI("cycle", deps.Telemetry),
		decisionCounter: decisionCounter,
	}, nil
}

// RequestStop asks the running cycle, or the one about to start, to stop at the
// next target or item boundary. In-flight navigations and waits are not
// interrupted.
func (o *Orchestrator) RequestStop() {
	o.stop.Store(true)
}

func (o *Orchestrator) stopRequested() bool {
	return o.stop.Load()
}

func (o *Orchestrator) updateStatus(p statusstore.Patch) {
	if o.deps.Status == nil {
		return
	}
	_, err := o.deps.Status.Update(p)
	if err != nil {
		o.tel.ReportWarning("orchestrator.status", err)
	}
}

// fatal reports whether err should end the whole cycle rather than the current target.
func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, session.ErrSessionUnavailable) || ctx.Err() != nil
}

// Run performs one cycle. Failures scoped to a brand or a listing are reported
// and skipped, the returned error is only set when the browsing session could
// not be brought up or ctx was cancelled. The ledger and accepted batch are
// persisted in every case.
func (o *Orchestrator) Run(ctx context.Context) (Result, error) {
	// cleared on the way out so a stop requested before Run starts still applies.
	defer o.stop.Store(false)

	id, err := random.String(8)
	if err != nil {
		return Result{}, err
	}

	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(attribute.String("cycle_id", id))

	result := Result{
		ID:        id,
		Accepted:  []listing.Item{},
		StartedAt: o.deps.Clock.Now(),
	}

	cfg, err := o.deps.Config()
	if err != nil {
		o.tel.ReportWarning("orchestrator.config", err)
	}
	brands := cfg.EnabledBrands()
	thresholds := cfg.Thresholds()

	o.updateStatus(statusstore.Patch{
		Running: statusstore.Bool(true),
		Message: statusstore.String(fmt.Sprintf("cycle %s started, %d brands", id, len(brands))),
	})
	o.tel.ReportInfo(
		"cycle started",
		"cycle", id,
		"brands", len(brands),
		"max_replaced_parts", thresholds.MaxReplacedParts,
		"max_painted_parts", thresholds.MaxPaintedParts,
	)
	if len(brands) == 0 {
		o.tel.ReportWarning("orchestrator.brands", "no enabled brands")
	}

	var runErr error
	for _, brand := range brands {
		if o.stopRequested() {
			o.tel.ReportInfo("stop requested, ending cycle early", "cycle", id)
			break
		}
		err := o.runBrand(ctx, &result, brand, thresholds)
		if err != nil {
			runErr = err
			break
		}
	}

	o.finish(ctx, &result)
	result.EndedAt = o.deps.Clock.Now()

	message := fmt.Sprintf(
		"cycle %s finished: %d processed, %d accepted",
		id, result.ProcessedCount, len(result.Accepted),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "cycle aborted")
		message = fmt.Sprintf("cycle %s aborted: %s", id, runErr.Error())
	}
	o.updateStatus(statusstore.Patch{
		Running: statusstore.Bool(false),
		Message: statusstore.String(message),
	})
	o.tel.ReportInfo(message)
	span.SetAttributes(
		attribute.Int("processed", result.ProcessedCount),
		attribute.Int("accepted", len(result.Accepted)),
	)
	return result, runErr
}

func (o *Orchestrator) runBrand(ctx context.Context, result *Result, brand appconfig.Brand, thresholds listing.Thresholds) error {
	ctx, span := tracer.Start(ctx, "runBrand")
	defer span.End()
	span.SetAttributes(attribute.String("brand", brand.Name))

	o.updateStatus(statusstore.Patch{
		Message: statusstore.String(fmt.Sprintf("checking %s", brand.Name)),
	})

	state, page, err := o.deps.Session.Ensure(ctx, brand.Url, o.opts.ListingMarker)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		o.tel.ReportWarning("orchestrator.listing", "brand", brand.Name, "state", state.String(), "err", err)
		return nil
	}

	items := o.deps.Extractor.ParseListingRows(page, brand.Name)
	if len(items) == 0 {
		o.tel.ReportWarning("orchestrator.listing", "brand", brand.Name, "err", "no listings found")
		return nil
	}
	o.tel.ReportInfo("processing listings", "brand", brand.Name, "count", len(items))

	defer o.saveLedger()

	navigated := false
	for _, item := range items {
		if o.stopRequested() {
			return nil
		}

		if o.deps.Ledger.Has(item.ID) {
			o.decide(ctx, result, item, nil, thresholds)
			continue
		}

		if navigated {
			err := o.deps.Clock.Sleep(ctx, o.deps.Jitter(o.opts.DelayMin, o.opts.DelayMax))
			if err != nil {
				return err
			}
		}
		navigated = true

		state, detail, err := o.deps.Session.Ensure(ctx, item.URL, o.opts.DetailMarker)
		if err != nil {
			if fatal(ctx, err) {
				return err
			}
			o.tel.ReportWarning("orchestrator.detail", "item", item.ID, "state", state.String(), "err", err)
			o.decide(ctx, result, item, nil, thresholds)
			continue
		}

		var report *listing.DamageReport
		parsed, err := o.deps.Extractor.ParseDamageReport(detail)
		switch {
		case err == nil:
			report = &parsed
			item = item.WithDamage(parsed)
		case errors.Is(err, listing.ErrExtractionAbsent):
			o.tel.ReportDebug("no damage report on detail page", "item", item.ID)
		default:
			o.tel.ReportWarning("orchestrator.damage", "item", item.ID, "err", err)
		}
		o.decide(ctx, result, item, report, thresholds)
	}
	return nil
}

func (o *Orchestrator) decide(ctx context.Context, result *Result, item listing.Item, report *listing.DamageReport, thresholds listing.Thresholds) {
	outcome := filter.Evaluate(item, report, thresholds, o.deps.Ledger)
	result.ProcessedCount++
	o.decisionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))

	if outcome == filter.RejectSeen {
		o.tel.ReportDebug("skipping seen listing", "item", item.ID)
		return
	}

	decision := decisionstore.Decision{
		CycleID:   result.ID,
		ItemID:    item.ID,
		Brand:     item.Brand,
		Title:     item.Title,
		Outcome:   outcome.String(),
		DecidedAt: o.deps.Clock.Now(),
	}
	if report != nil {
		decision.PaintedCount = report.PaintedCount()
		decision.ReplacedCount = report.ReplacedCount()
		decision.LocallyPaintedCount = report.LocallyPaintedCount()
		decision.HoodDamageKind = string(report.HoodDamageKind)
	}

	o.tel.ReportInfo(
		"listing evaluated",
		"item", item.ID,
		"title", item.Title,
		"outcome", decision.Outcome,
		"replaced", fmt.Sprintf("%d/%d", decision.ReplacedCount, thresholds.MaxReplacedParts),
		"painted", fmt.Sprintf("%d/%d", decision.PaintedCount, thresholds.MaxPaintedParts),
		"hood", decision.HoodDamageKind,
	)

	if outcome == filter.Accept {
		result.Accepted = append(result.Accepted, item)
	}

	if o.deps.Decisions != nil {
		err := o.deps.Decisions.Record(ctx, decision)
		if err != nil {
			o.tel.ReportWarning("orchestrator.decisions", err)
		}
	}
}

func (o *Orchestrator) saveLedger() {
	err := o.deps.Ledger.Save()
	if err != nil {
		o.tel.ReportBroken("orchestrator.ledger", err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, result *Result) {
	o.saveLedger()
	o.tel.ReportCount("ledger_size", int64(o.deps.Ledger.Len()))

	if o.opts.AcceptedPath != "" {
		err := fsutil.WriteJSON(o.opts.AcceptedPath, result.Accepted)
		if err != nil {
			o.tel.ReportBroken("orchestrator.accepted", err)
		}
	}

	if len(result.Accepted) == 0 {
		o.tel.ReportInfo("no new listings matched")
		return
	}
	if o.deps.Notifier == nil {
		return
	}
	// the notification is sent even if ctx was cancelled mid-cycle.
	if !o.deps.Notifier.Send(context.WithoutCancel(ctx), result.Accepted) {
		o.tel.ReportWarning("orchestrator.notify", "accepted", len(result.Accepted))
	}
}
