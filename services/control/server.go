// Package control serves the JSON API the dashboard uses to watch and steer the
// crawler.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"sahibinden-scraper/internal/components/telemetry"
	"sahibinden-scraper/lib/appconfig"
	"sahibinden-scraper/lib/decisionstore"
	"sahibinden-scraper/lib/fsutil"
	"sahibinden-scraper/lib/listing"
	"sahibinden-scraper/lib/otpstore"
	"sahibinden-scraper/lib/serviceutil"
	"sahibinden-scraper/lib/statusstore"
	"sahibinden-scraper/services/cycle"
	"sahibinden-scraper/services/scheduler"
)

const maxUploadSize = 1 << 20

type Scheduler interface {
	TriggerAsync(ctx context.Context) error
	Start(ctx context.Context, interval time.Duration) error
	Stop()
	Running() bool
	Scheduled() (time.Duration, bool)
	Last() (cycle.Result, bool)
}

type Ledger interface {
	Len() int
}

type StatusSource interface {
	Read() (statusstore.Status, error)
}

type DecisionSource interface {
	Recent(ctx context.Context, limit int) ([]decisionstore.Decision, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

type CookieImporter interface {
	Import(r io.Reader) (int, error)
}

type OTPSink interface {
	Submit(code string) error
}

type Deps struct {
	Scheduler    Scheduler
	Ledger       Ledger
	Status       StatusSource
	Decisions    DecisionSource
	Cookies      CookieImporter
	OTP          OTPSink
	ConfigPath   string
	AcceptedPath string
	// AccessToken, if set, is required as a bearer token on every request.
	AccessToken string
	Telemetry   telemetry.API
}

type Server struct {
	deps Deps
	tel  telemetry.API
	// cycles started through the api outlive the request that started them.
	cycleCtx context.Context
}

// NewServer creates the api, cycles it starts run with cycleCtx.
func NewServer(cycleCtx context.Context, deps Deps) *Server {
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.SlogAPI{}
	}
	return &Server{
		deps:     deps,
		tel:      telemetry.NewScopedAPI("control", deps.Telemetry),
		cycleCtx: cycleCtx,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.getStatus)
	mux.HandleFunc("GET /api/config", s.getConfig)
	mux.HandleFunc("POST /api/config", s.postConfig)
	mux.HandleFunc("GET /api/listings", s.getListings)
	mux.HandleFunc("GET /api/stats", s.getStats)
	mux.HandleFunc("GET /api/decisions", s.getDecisions)
	mux.HandleFunc("POST /api/scraper/run-now", s.runNow)
	mux.HandleFunc("POST /api/scraper/start", s.start)
	mux.HandleFunc("POST /api/scraper/stop", s.stop)
	mux.HandleFunc("POST /api/cookie/upload", s.uploadCookie)
	mux.HandleFunc("POST /api/otp", s.submitOTP)
	return serviceutil.VerifyAccessToken(s.deps.AccessToken, mux)
}

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.tel.ReportWarning("server.write", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.tel.ReportBroken("server.request", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type statusResponse struct {
	statusstore.Status
	CycleRunning    bool `json:"cycle_running"`
	Scheduled       bool `json:"scheduled"`
	IntervalMinutes int  `json:"interval_minutes,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Status.Read()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	interval, scheduled := s.deps.Scheduler.Scheduled()
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:          status,
		CycleRunning:    s.deps.Scheduler.Running(),
		Scheduled:       scheduled,
		IntervalMinutes: int(interval / time.Minute),
	})
}

func (s *Server) loadConfig() appconfig.Config {
	cfg, err := appconfig.Load(s.deps.ConfigPath)
	if err != nil {
		if _, statErr := os.Stat(s.deps.ConfigPath); statErr == nil {
			s.tel.ReportWarning("server.config", err)
		}
	}
	return cfg
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.loadConfig())
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	var cfg appconfig.Config
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&cfg)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = appconfig.Save(s.deps.ConfigPath, cfg)
	if errors.Is(err, appconfig.ErrConfigurationInvalid) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.tel.ReportInfo("configuration updated", "brands", len(cfg.Brands))
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) readListings() ([]listing.Item, error) {
	listings := []listing.Item{}
	err := fsutil.ReadJSON(s.deps.AcceptedPath, &listings)
	if os.IsNotExist(err) {
		return []listing.Item{}, nil
	}
	return listings, err
}

func (s *Server) getListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.readListings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listings)
}

type statsResponse struct {
	TotalSeen       int                      `json:"total_seen"`
	LastAccepted    int                      `json:"last_accepted"`
	Outcomes        map[string]int64         `json:"outcomes"`
	RecentDecisions []decisionstore.Decision `json:"recent_decisions"`
	LastCycle       *cycle.Result            `json:"last_cycle,omitempty"`
	Running         bool                     `json:"running"`
	LoginWaiting    bool                     `json:"login_waiting"`
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	listings, err := s.readListings()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	status, err := s.deps.Status.Read()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	stats := statsResponse{
		TotalSeen:       s.deps.Ledger.Len(),
		LastAccepted:    len(listings),
		Outcomes:        map[string]int64{},
		RecentDecisions: []decisionstore.Decision{},
		Running:         s.deps.Scheduler.Running(),
		LoginWaiting:    status.LoginWaiting,
	}
	if last, ok := s.deps.Scheduler.Last(); ok {
		stats.LastCycle = &last
	}
	if s.deps.Decisions != nil {
		outcomes, err := s.deps.Decisions.CountByOutcome(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		recent, err := s.deps.Decisions.Recent(r.Context(), 10)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		stats.Outcomes = outcomes
		if recent != nil {
			stats.RecentDecisions = recent
		}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getDecisions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Decisions == nil {
		s.writeJSON(w, http.StatusOK, []decisionstore.Decision{})
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	recent, err := s.deps.Decisions.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recent == nil {
		recent = []decisionstore.Decision{}
	}
	s.writeJSON(w, http.StatusOK, recent)
}

func (s *Server) runNow(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Scheduler.TriggerAsync(s.cycleCtx)
	if errors.Is(err, scheduler.ErrCycleRunning) {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, successResponse{Success: true, Message: "cycle started"})
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	cfg := s.loadConfig()
	err := s.deps.Scheduler.Start(s.cycleCtx, cfg.CheckInterval())
	if errors.Is(err, scheduler.ErrAlreadyStarted) {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "scheduler started"})
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	s.deps.Scheduler.Stop()
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "scheduler stopped"})
}

// uploadCookie accepts either a multipart form with a `cookie` file or the raw
// json array as the body.
func (s *Server) uploadCookie(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	var body io.Reader = r.Body
	if err := r.ParseMultipartForm(maxUploadSize); err == nil {
		file, _, err := r.FormFile("cookie")
		if err != nil {
			s.writeError(w, http.StatusBadRequest, errors.New("no `cookie` file in the form"))
			return
		}
		defer file.Close()
		body = file
	}

	count, err := s.deps.Cookies.Import(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.tel.ReportInfo("cookie snapshot uploaded", "count", count)
	s.writeJSON(w, http.StatusOK, successResponse{Success: true, Count: count})
}

type otpRequest struct {
	Code string `json:"code"`
}

func (s *Server) submitOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadSize)).Decode(&req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	err = s.deps.OTP.Submit(req.Code)
	if errors.Is(err, otpstore.ErrEmptyCode) {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, successResponse{Success: true})
}
