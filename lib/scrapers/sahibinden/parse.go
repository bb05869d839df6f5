package sahibinden

import (
	"net/url"
	"strings"

	"sahibinden-scraper/lib/htmlutil"
	"sahibinden-scraper/lib/listing"
	"sahibinden-scraper/lib/textutil"
	"sahibinden-scraper/lib/webpage"

	"github.com/PuerkitoBio/goquery"
)

const (
	ListingRowSelector = "tbody.searchResultsRowClass tr.searchResultsItem"
	DamageAreaSelector = "div.custom-area"
)

// Parser extracts listing rows and damage reports from loaded pages.
type Parser struct {
	BaseUrl *url.URL
}

func NewParser(baseUrl *url.URL) Parser {
	if baseUrl == nil {
		baseUrl, _ = url.Parse(DefaultBaseUrl)
	}
	return Parser{BaseUrl: baseUrl}
}

func cellOr(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return listing.NotAvailable
	}
	text := htmlutil.CleanText(sel)
	if text == "" {
		return listing.NotAvailable
	}
	return text
}

// ParseListingRows reads every result row of a search page. Advertisement rows
// and rows without an id or title link are skipped.
func (p Parser) ParseListingRows(page webpage.Page, brand string) []listing.Item {
	var items []listing.Item
	page.Document().Find(ListingRowSelector).Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("nativeAd") {
			return
		}
		id := strings.TrimSpace(row.AttrOr("data-id", ""))
		if id == "" {
			return
		}
		link := row.Find("a.classifiedTitle").First()
		if link.Length() == 0 {
			return
		}

		title := textutil.CollapseSpace(link.AttrOr("title", ""))
		if title == "" {
			title = htmlutil.CleanText(link)
		}

		attrs := row.Find("td.searchResultsAttributeValue")
		items = append(items, listing.Item{
			ID:       id,
			Title:    title,
			URL:      htmlutil.Resolve(p.BaseUrl, link.AttrOr("href", "")),
			Year:     cellOr(attrs.Eq(0)),
			Mileage:  cellOr(attrs.Eq(1)),
			Color:    cellOr(attrs.Eq(2)),
			Price:    cellOr(row.Find("td.searchResultsPriceValue span").First()),
			Location: cellOr(row.Find("td.searchResultsLocationValue").First()),
			Brand:    brand,
		})
	})
	return items
}

// ParseDamageReport reads the damage section of a detail page, it returns
// listing.ErrExtractionAbsent when the page has no damage section at all.
func (p Parser) ParseDamageReport(page webpage.Page) (listing.DamageReport, error) {
	area := page.Document().Find(DamageAreaSelector).First()
	if area.Length() == 0 {
		return listing.DamageReport{}, listing.ErrExtractionAbsent
	}

	var painted, replaced, local []string
	area.Find("div.car-damage-info-list ul").Each(func(_ int, group *goquery.Selection) {
		heading := group.Find("li.pair-title").First()
		if heading.Length() == 0 {
			return
		}
		label := htmlutil.CleanText(heading)
		parts := group.Find("li.selected-damage").Map(func(_ int, li *goquery.Selection) string {
			return htmlutil.CleanText(li)
		})

		// "Lokal Boyalı" also contains "Boyalı" so it is matched first.
		switch {
		case textutil.ContainsFold(label, "Lokal"):
			local = append(local, parts...)
		case textutil.ContainsFold(label, "Boyalı") && heading.HasClass("painted-new"):
			painted = append(painted, parts...)
		case textutil.ContainsFold(label, "Değişen") && heading.HasClass("changed-new"):
			replaced = append(replaced, parts...)
		}
	})
	return listing.NewDamageReport(painted, replaced, local), nil
}
