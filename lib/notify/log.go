package notify

import (
	"context"

	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/listing"
)

// LogNotifier only reports the batch, it is used for dry runs and when no
// email settings are configured.
type LogNotifier struct {
	tel telemetry.API
}

func NewLogNotifier(tel telemetry.API) LogNotifier {
	if tel == nil {
		tel = telemetry.SlogAPI{}
	}
	return LogNotifier{tel: telemetry.NewScopedAPI("notify", tel)}
}

func (n LogNotifier) Send(ctx context.Context, batch []listing.Item) bool {
	if len(batch) == 0 {
		return false
	}
	for _, item := range batch {
		painted, replaced := damageCounts(item)
		n.tel.ReportInfo(
			"accepted listing",
			"title", item.Title,
			"brand", item.Brand,
			"price", item.Price,
			"year", item.Year,
			"mileage", item.Mileage,
			"painted", painted,
			"replaced", replaced,
			"url", item.URL,
		)
	}
	return true
}
