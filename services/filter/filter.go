// Package filter decides whether a listing belongs in the accepted batch.
package filter

import (
	"sahibinden-scraper/lib/listing"
)

type Outcome int

const (
	Accept Outcome = iota
	RejectSeen
	RejectNoReport
	RejectHood
	RejectThreshold
)

func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accept"
	case RejectSeen:
		return "reject_seen"
	case RejectNoReport:
		return "reject_no_report"
	case RejectHood:
		return "reject_hood"
	case RejectThreshold:
		return "reject_threshold"
	}
	return "unknown"
}

// Ledger is the set of listing ids that have already been evaluated.
type Ledger interface {
	Has(id string) bool
	Add(id string) bool
}

// Evaluate returns the outcome for item. Every item that was not seen before
// is added to the ledger whatever the outcome, so it is never evaluated again.
// A nil report means the damage report could not be read.
func Evaluate(item listing.Item, report *listing.DamageReport, thresholds listing.Thresholds, ledger Ledger) Outcome {
	if ledger.Has(item.ID) {
		return RejectSeen
	}
	ledger.Add(item.ID)

	if report == nil {
		return RejectNoReport
	}
	if report.HoodDamaged {
		return RejectHood
	}
	if report.ReplacedCount() <= thresholds.MaxReplacedParts &&
		report.PaintedCount() <= thresholds.MaxPaintedParts {
		return Accept
	}
	return RejectThreshold
}
