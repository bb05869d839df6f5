package control

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"sahibinden-scraper/lib/appconfig"
	"sahibinden-scraper/lib/cookiestore"
	"sahibinden-scraper/lib/decisionstore"
	"sahibinden-scraper/lib/fsutil"
	"sahibinden-scraper/lib/ledger"
	"sahibinden-scraper/lib/listing"
	"sahibinden-scraper/lib/otpstore"
	"sahibinden-scraper/lib/statusstore"
	"sahibinden-scraper/lib/testutil"
	"sahibinden-scraper/services/cycle"
	"sahibinden-scraper/services/scheduler"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	running   bool
	started   bool
	interval  time.Duration
	triggered int
	stopped   int
	last      *cycle.Result
}

func (s *fakeScheduler) TriggerAsync(ctx context.Context) error {
	if s.running {
		return scheduler.ErrCycleRunning
	}
	s.triggered++
	return nil
}

func (s *fakeScheduler) Start(ctx context.Context, interval time.Duration) error {
	if s.started {
		return scheduler.ErrAlreadyStarted
	}
	s.started = true
	s.interval = interval
	return nil
}

func (s *fakeScheduler) Stop() {
	s.started = false
	s.stopped++
}

func (s *fakeScheduler) Running() bool { return s.running }

func (s *fakeScheduler) Scheduled() (time.Duration, bool) { return s.interval, s.started }

func (s *fakeScheduler) Last() (cycle.Result, bool) {
	if s.last == nil {
		return cycle.Result{}, false
	}
	return *s.last, true
}

type fixture struct {
	dir       string
	sched     *fakeScheduler
	ledger    *ledger.Ledger
	decisions decisionstore.Store
	cookies   cookiestore.Store
	otp       otpstore.Store
	status    *statusstore.Store
	handler   http.Handler
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	dir := t.TempDir()

	f := &fixture{
		dir:       dir,
		sched:     &fakeScheduler{},
		ledger:    ledger.NewMemory(),
		decisions: testutil.DecisionStore(t),
		cookies:   cookiestore.New(filepath.Join(dir, "cookies.json")),
		otp:       otpstore.New(filepath.Join(dir, "otp.json")),
		status:    statusstore.New(filepath.Join(dir, "status.json"), nil),
	}
	server := NewServer(context.Background(), Deps{
		Scheduler:    f.sched,
		Ledger:       f.ledger,
		Status:       f.status,
		Decisions:    f.decisions,
		Cookies:      f.cookies,
		OTP:          f.otp,
		ConfigPath:   filepath.Join(dir, "config.json"),
		AcceptedPath: filepath.Join(dir, "accepted.json"),
		AccessToken:  token,
	})
	f.handler = server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestStatus(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.status.Update(statusstore.Patch{
		LoginWaiting: statusstore.Bool(true),
		Message:      statusstore.String("waiting for login"),
	})
	require.NoError(t, err)
	f.sched.running = true

	rec := f.do(t, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[map[string]any](t, rec)
	require.Equal(t, true, got["login_waiting"])
	require.Equal(t, true, got["cycle_running"])
	require.Equal(t, false, got["scheduled"])
	require.Equal(t, "waiting for login", got["message"])
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/config", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, cmp.Diff(appconfig.Default(), decode[appconfig.Config](t, rec)))

	cfg := appconfig.Config{
		CheckIntervalMinutes: 30,
		MaxReplacedParts:     0,
		MaxPaintedParts:      2,
		Brands: []appconfig.Brand{
			{Name: "BMW", Url: "https://www.sahibinden.com/bmw"},
		},
	}
	body, err := json.Marshal(cfg)
	require.NoError(t, err)

	rec = f.do(t, http.MethodPost, "/api/config", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/config", nil, "")
	require.Empty(t, cmp.Diff(cfg, decode[appconfig.Config](t, rec)))
}

func TestConfigRejectsInvalid(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/config", []byte(`{"check_interval_minutes": 0, "brands": []}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decode[errorResponse](t, rec).Error, "check_interval_minutes")

	rec = f.do(t, http.MethodPost, "/api/config", []byte(`{`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListings(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodGet, "/api/listings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	accepted := []listing.Item{{ID: "1001", Brand: "BMW", Title: "BMW 320i"}}
	require.NoError(t, fsutil.WriteJSON(filepath.Join(f.dir, "accepted.json"), accepted))

	rec = f.do(t, http.MethodGet, "/api/listings", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]listing.Item](t, rec)
	require.Len(t, got, 1)
	require.Equal(t, "1001", got[0].ID)
}

func TestStats(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	f.ledger.Add("1001")
	f.ledger.Add("1002")
	require.NoError(t, f.decisions.Record(ctx, decisionstore.Decision{
		CycleID: "c1", ItemID: "1001", Outcome: "accept", DecidedAt: time.Unix(100, 0),
	}))
	require.NoError(t, f.decisions.Record(ctx, decisionstore.Decision{
		CycleID: "c1", ItemID: "1002", Outcome: "reject_threshold", DecidedAt: time.Unix(101, 0),
	}))
	require.NoError(t, fsutil.WriteJSON(filepath.Join(f.dir, "accepted.json"), []listing.Item{{ID: "1001"}}))
	f.sched.last = &cycle.Result{ID: "c1", ProcessedCount: 2}

	rec := f.do(t, http.MethodGet, "/api/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[statsResponse](t, rec)
	require.Equal(t, 2, got.TotalSeen)
	require.Equal(t, 1, got.LastAccepted)
	require.Equal(t, map[string]int64{"accept": 1, "reject_threshold": 1}, got.Outcomes)
	require.Len(t, got.RecentDecisions, 2)
	require.NotNil(t, got.LastCycle)
	require.Equal(t, "c1", got.LastCycle.ID)

	rec = f.do(t, http.MethodGet, "/api/decisions?limit=1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]decisionstore.Decision](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/decisions?limit=zero", nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScraperControls(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/scraper/run-now", nil, "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, f.sched.triggered)

	f.sched.running = true
	rec = f.do(t, http.MethodPost, "/api/scraper/run-now", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scraper/start", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, appconfig.Default().CheckInterval(), f.sched.interval)

	rec = f.do(t, http.MethodPost, "/api/scraper/start", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/scraper/stop", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, f.sched.stopped)

	rec = f.do(t, http.MethodGet, "/api/scraper/stop", nil, "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCookieUpload(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/cookie/upload", []byte(`[{"name":"st","value":"abc","domain":".sahibinden.com"}]`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, decode[successResponse](t, rec).Count)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("cookie", "cookies.json")
	require.NoError(t, err)
	_, err = part.Write([]byte(`[{"name":"a","value":"1"},{"name":"b","value":"2"}]`))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	rec = f.do(t, http.MethodPost, "/api/cookie/upload", buf.Bytes(), form.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, decode[successResponse](t, rec).Count)

	cookies, err := f.cookies.Load()
	require.NoError(t, err)
	require.Len(t, cookies, 2)

	rec = f.do(t, http.MethodPost, "/api/cookie/upload", []byte(`{"not": "a list"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	cookies, err = f.cookies.Load()
	require.NoError(t, err)
	require.Len(t, cookies, 2)
}

func TestOTPSubmit(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/api/otp", []byte(`{"code": "  "}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, f.otp.Pending())

	rec = f.do(t, http.MethodPost, "/api/otp", []byte(`{"code": "123456"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, f.otp.Pending())

	code, ok, err := f.otp.Consume()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "123456", code)
}

func TestAccessToken(t *testing.T) {
	f := newFixture(t, "secret")

	rec := f.do(t, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
