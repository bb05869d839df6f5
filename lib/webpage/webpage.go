package webpage

import (
	"bytes"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// Page is a loaded document: the address it ended up at after redirects, the
// status it was served with and the raw body.
type Page struct {
	URL    *url.URL
	Status int
	Body   []byte
}

func (p Page) Address() string {
	if p.URL == nil {
		return ""
	}
	return p.URL.String()
}

// Document parses the body, a body that cannot be parsed yields an empty document.
func (p Page) Document() *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(bytes.NewReader(nil))
	}
	return doc
}
