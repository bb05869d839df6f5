// Package timezone pins operator-facing timestamps to Turkish time, containers
// usually run in UTC.
package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Istanbul")
	if err != nil {
		// Turkey has stayed on UTC+3 without daylight saving since 2016.
		Location = time.FixedZone("+03", 3*60*60)
	}
}

func Now() time.Time {
	return time.Now().In(Location)
}

// Format renders t in Turkish time, the zero time renders as "-".
func Format(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(Location).Format(time.DateTime)
}
