package sahibinden

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/cookiestore"
	"sahibinden-scraper/lib/htmlutil"
	"sahibinden-scraper/lib/restyutil"
	"sahibinden-scraper/lib/webpage"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseUrl = "https://www.sahibinden.com"
	DefaultAuthUrl = "https://secure.sahibinden.com"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"
)

var (
	ErrNoOTPForm   = errors.New("no otp form on the current page")
	ErrNoPageYet   = errors.New("no page has been loaded yet")
	ErrNotOpened   = errors.New("client is not open")
	challengeInput = "#btn-continue"
)

type ClientOptions struct {
	BaseUrl   string
	AuthUrl   string
	UserAgent string
	// Timeout bounds a single request.
	Timeout time.Duration
	// MinRequestInterval is the minimum spacing between two requests.
	MinRequestInterval time.Duration
	Telemetry          telemetry.API
	// Dump, if set, receives every request/response exchange.
	Dump restyutil.InstrumentOutput
}

// Client is an HTTP page driver: it keeps a cookie jar and the current page the
// way a single browser tab would. It is not safe for concurrent navigations.
type Client struct {
	BaseUrl *url.URL
	AuthUrl *url.URL
	Http    *resty.Client

	limiter *rate.Limiter
	tel     telemetry.API

	mu      sync.Mutex
	current webpage.Page
	opened  bool
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.AuthUrl == "" {
		opts.AuthUrl = DefaultAuthUrl
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	if opts.MinRequestInterval <= 0 {
		opts.MinRequestInterval = time.Second
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	authUrl, err := url.Parse(opts.AuthUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept-language", "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7")
	client.SetRedirectPolicy(
		resty.FlexibleRedirectPolicy(10),
		resty.DomainCheckRedirectPolicy(baseUrl.Hostname(), authUrl.Hostname()),
	)
	client.SetTimeout(opts.Timeout)

	c := &Client{
		BaseUrl: baseUrl,
		AuthUrl: authUrl,
		Http:    client,
		limiter: rate.NewLimiter(rate.Every(opts.MinRequestInterval), 1),
		tel:     opts.Telemetry,
	}
	restyutil.InstrumentClient(client, tracer, opts.Dump)
	if c.tel != nil {
		telemetry.InstrumentResty(client, telemetry.NewScopedAPI("sahibinden.http", c.tel))
	}
	return c, nil
}

func newJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Open brings the session up by loading the home page, an error here means
// the site is unreachable.
func (c *Client) Open(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:Open")
	defer span.End()

	c.mu.Lock()
	c.opened = true
	c.mu.Unlock()

	_, err := c.Navigate(ctx, c.BaseUrl.String())
	if err != nil {
		c.mu.Lock()
		c.opened = false
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load home page")
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.opened = false
	c.current = webpage.Page{}
	c.mu.Unlock()
	c.Http.GetClient().CloseIdleConnections()
	return nil
}

func (c *Client) Current() webpage.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) setCurrent(page webpage.Page) {
	c.mu.Lock()
	c.current = page
	c.mu.Unlock()
}

func (c *Client) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

func (c *Client) pageFromResponse(res *resty.Response) webpage.Page {
	page := webpage.Page{
		Status: res.StatusCode(),
		Body:   res.Body(),
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		page.URL = res.RawResponse.Request.URL
	} else if parsed, err := url.Parse(res.Request.URL); err == nil {
		page.URL = parsed
	}
	return page
}

func (c *Client) do(ctx context.Context, method, target string, form map[string]string) (webpage.Page, error) {
	if !c.isOpen() {
		return webpage.Page{}, ErrNotOpened
	}
	err := c.limiter.Wait(ctx)
	if err != nil {
		return webpage.Page{}, err
	}

	req := c.Http.R().SetContext(ctx)
	var res *resty.Response
	switch method {
	case http.MethodPost:
		res, err = req.SetFormData(form).Post(target)
	default:
		if len(form) > 0 {
			req.SetQueryParams(form)
		}
		res, err = req.Get(target)
	}
	if err != nil {
		return webpage.Page{}, err
	}

	page := c.pageFromResponse(res)
	c.setCurrent(page)
	return page, nil
}

// Navigate loads target (absolute, or relative to the base url) and makes it the current page.
func (c *Client) Navigate(ctx context.Context, target string) (webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "client:Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("target", target))

	page, err := c.do(ctx, http.MethodGet, htmlutil.Resolve(c.BaseUrl, target), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to navigate")
		return webpage.Page{}, err
	}
	span.SetAttributes(attribute.Int("status", page.Status))
	return page, nil
}

// Reload loads the current page again.
func (c *Client) Reload(ctx context.Context) (webpage.Page, error) {
	current := c.Current()
	if current.URL == nil {
		return webpage.Page{}, ErrNoPageYet
	}
	return c.Navigate(ctx, current.Address())
}

// DismissChallenge presses the acknowledgment control of an interstitial on the
// current page, it returns false if there is no such control.
func (c *Client) DismissChallenge(ctx context.Context) (bool, error) {
	ctx, span := tracer.Start(ctx, "client:DismissChallenge")
	defer span.End()

	current := c.Current()
	doc := current.Document()
	control := doc.Find(challengeInput).First()
	if control.Length() == 0 {
		return false, nil
	}

	form := control.Closest("form")
	if form.Length() > 0 {
		action := htmlutil.Resolve(current.URL, form.AttrOr("action", current.Address()))
		if action == "" {
			action = current.Address()
		}
		method := strings.ToUpper(form.AttrOr("method", http.MethodGet))
		values := htmlutil.FormValues(form)
		if name, ok := control.Attr("name"); ok && name != "" {
			values[name] = control.AttrOr("value", "")
		}
		_, err := c.do(ctx, method, action, values)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to submit challenge form")
			return true, err
		}
		return true, nil
	}

	href := htmlutil.Resolve(current.URL, control.AttrOr("href", ""))
	if href == "" {
		// the control is script driven, there is nothing to follow.
		return true, nil
	}
	_, err := c.Navigate(ctx, href)
	return true, err
}

const (
	otpFormSelector  = `form:has(input[name="code"]), form:has(input[autocomplete="one-time-code"])`
	otpInputSelector = `input[name="code"], input[autocomplete="one-time-code"]`
)

// SubmitOTP fills the one-time passcode form on the current page and submits it.
func (c *Client) SubmitOTP(ctx context.Context, code string) (webpage.Page, error) {
	ctx, span := tracer.Start(ctx, "client:SubmitOTP")
	defer span.End()

	current := c.Current()
	form := current.Document().Find(otpFormSelector).First()
	if form.Length() == 0 {
		span.SetStatus(codes.Error, ErrNoOTPForm.Error())
		return webpage.Page{}, ErrNoOTPForm
	}

	input := form.Find(otpInputSelector).First()
	values := htmlutil.FormValues(form)
	values[input.AttrOr("name", "code")] = code

	action := htmlutil.Resolve(current.URL, form.AttrOr("action", ""))
	if action == "" {
		action = current.Address()
	}
	method := strings.ToUpper(form.AttrOr("method", http.MethodPost))

	page, err := c.do(ctx, method, action, values)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit otp")
		return webpage.Page{}, err
	}
	return page, nil
}

// LoadCookies replaces the jar with the given snapshot.
func (c *Client) LoadCookies(cookies []cookiestore.Cookie) error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	for _, ck := range cookies {
		host := strings.TrimPrefix(ck.Domain, ".")
		if host == "" {
			host = c.BaseUrl.Hostname()
		}
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, []*http.Cookie{ck.HTTP()})
	}
	c.Http.SetCookieJar(jar)
	return nil
}

// ExportCookies returns the cookies the jar would send to the site, as domain
// cookies. A cookie on the auth host that shares its name with a different
// cookie on the base host is kept and scoped to the auth host.
func (c *Client) ExportCookies() []cookiestore.Cookie {
	jar := c.Http.GetClient().Jar
	if jar == nil {
		return nil
	}

	type cookieKey struct {
		name, domain, path string
	}
	seen := map[cookieKey]bool{}
	values := map[string]string{}
	var out []cookiestore.Cookie
	for _, u := range []*url.URL{c.BaseUrl, c.AuthUrl} {
		domain, err := publicsuffix.EffectiveTLDPlusOne(u.Hostname())
		if err != nil {
			domain = u.Hostname()
		}
		for _, ck := range jar.Cookies(u) {
			exported := cookiestore.FromHTTP(ck, "."+domain)
			exported.Secure = u.Scheme == "https"
			if value, ok := values[ck.Name]; ok && value != ck.Value {
				exported.Domain = u.Hostname()
			}

			key := cookieKey{name: exported.Name, domain: exported.Domain, path: exported.Path}
			if seen[key] {
				continue
			}
			seen[key] = true
			if _, ok := values[ck.Name]; !ok {
				values[ck.Name] = ck.Value
			}
			out = append(out, exported)
		}
	}
	return out
}
