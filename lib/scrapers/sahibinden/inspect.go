package sahibinden

import (
	"net/http"
	"strings"

	"sahibinden-scraper/lib/htmlutil"
	"sahibinden-scraper/lib/textutil"
	"sahibinden-scraper/lib/webpage"
)

var rateLimitPhrases = []string{
	"too many requests",
	"çok fazla istek",
}

var challengePhrases = []string{
	"just a moment",
	"bir dakika lütfen",
	"checking your browser",
}

var loginPaths = []string{"/giris", "/login"}

// Inspector classifies pages into the blocking conditions the session has to
// resolve before content can be read.
type Inspector struct {
	AuthHost string
}

func NewInspector(authHost string) Inspector {
	if authHost == "" {
		authHost = "secure.sahibinden.com"
	}
	return Inspector{AuthHost: authHost}
}

func headline(page webpage.Page) string {
	return htmlutil.CleanText(page.Document().Find("title, h1"))
}

// IsChallenge reports whether the page is an anti-bot interstitial.
func (i Inspector) IsChallenge(page webpage.Page) bool {
	doc := page.Document()
	if doc.Find(challengeInput).Length() > 0 {
		return true
	}
	if doc.Find("#challenge-form, #cf-challenge-running, script[src*='challenge-platform']").Length() > 0 {
		return true
	}
	if page.Status == http.StatusForbidden || page.Status == http.StatusServiceUnavailable {
		_, ok := textutil.MatchAny(headline(page), challengePhrases)
		return ok
	}
	return false
}

// IsRateLimited reports whether the site refused the request for being too frequent.
func (i Inspector) IsRateLimited(page webpage.Page) bool {
	if page.Status == http.StatusTooManyRequests {
		return true
	}
	_, ok := textutil.MatchAny(headline(page), rateLimitPhrases)
	return ok
}

// IsLogin reports whether the page is on the authentication host or a login path.
func (i Inspector) IsLogin(page webpage.Page) bool {
	if page.URL == nil {
		return false
	}
	if strings.EqualFold(page.URL.Hostname(), i.AuthHost) {
		return true
	}
	path := strings.ToLower(page.URL.Path)
	for _, p := range loginPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (i Inspector) HasOTPForm(page webpage.Page) bool {
	return page.Document().Find(otpFormSelector).Length() > 0
}

// HasContent reports whether marker matches anything on the page. An empty
// marker matches every page.
func (i Inspector) HasContent(page webpage.Page, marker string) bool {
	if marker == "" {
		return len(page.Body) > 0
	}
	return page.Document().Find(marker).Length() > 0
}
