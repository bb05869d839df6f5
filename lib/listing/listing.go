// Package listing holds the records the crawler produces: a scraped listing and
// the damage report of its vehicle.
package listing

import (
	"errors"

	"sahibinden-scraper/lib/textutil"
)

// ErrExtractionAbsent is returned when a page loaded but lacks the section a
// record is read from.
var ErrExtractionAbsent = errors.New("expected section is absent from the page")

// NotAvailable is used for listing cells that were missing from the row.
const NotAvailable = "N/A"

// Item is one scraped listing row. It is immutable once parsed, except for
// Damage which is attached once before a decision is recorded.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Year     string `json:"year"`
	Mileage  string `json:"mileage"`
	Color    string `json:"color"`
	Price    string `json:"price"`
	Location string `json:"location"`
	Brand    string `json:"brand"`

	Damage *DamageReport `json:"damage_info,omitempty"`
}

// WithDamage returns a copy of the item with the damage report attached.
func (i Item) WithDamage(report DamageReport) Item {
	i.Damage = &report
	return i
}

type HoodDamageKind string

const (
	HoodClean          HoodDamageKind = ""
	HoodPainted        HoodDamageKind = "painted"
	HoodReplaced       HoodDamageKind = "replaced"
	HoodLocallyPainted HoodDamageKind = "locally_painted"
)

// HoodKeywords are matched case-insensitively against part names.
var HoodKeywords = []string{"kaput", "ön kaput", "motor kaputu"}

// DamageReport is the painted/replaced/locally painted part breakdown of a
// listing's detail page. Counts are derived from the part lists.
type DamageReport struct {
	PaintedParts        []string       `json:"painted_parts"`
	ReplacedParts       []string       `json:"replaced_parts"`
	LocallyPaintedParts []string       `json:"locally_painted_parts"`
	HoodDamaged         bool           `json:"hood_damaged"`
	HoodDamageKind      HoodDamageKind `json:"hood_damage_kind,omitempty"`
}

// NewDamageReport builds a report and computes the hood fields. Painted parts are
// checked before replaced parts before locally painted parts, the first list
// containing a hood keyword determines the kind.
func NewDamageReport(painted, replaced, locallyPainted []string) DamageReport {
	report := DamageReport{
		PaintedParts:        nonNil(painted),
		ReplacedParts:       nonNil(replaced),
		LocallyPaintedParts: nonNil(locallyPainted),
	}

	lists := []struct {
		parts []string
		kind  HoodDamageKind
	}{
		{parts: report.PaintedParts, kind: HoodPainted},
		{parts: report.ReplacedParts, kind: HoodReplaced},
		{parts: report.LocallyPaintedParts, kind: HoodLocallyPainted},
	}
	for _, l := range lists {
		for _, part := range l.parts {
			if _, ok := textutil.MatchAny(part, HoodKeywords); ok {
				report.HoodDamaged = true
				report.HoodDamageKind = l.kind
				return report
			}
		}
	}
	return report
}

func nonNil(parts []string) []string {
	if parts == nil {
		return []string{}
	}
	return parts
}

func (r DamageReport) PaintedCount() int        { return len(r.PaintedParts) }
func (r DamageReport) ReplacedCount() int       { return len(r.ReplacedParts) }
func (r DamageReport) LocallyPaintedCount() int { return len(r.LocallyPaintedParts) }

// Thresholds are the inclusive upper bounds for an acceptable vehicle.
type Thresholds struct {
	MaxReplacedParts int `json:"max_replaced_parts"`
	MaxPaintedParts  int `json:"max_painted_parts"`
}
