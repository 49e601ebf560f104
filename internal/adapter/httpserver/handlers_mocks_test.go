package httpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/classifier"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/config"
)

// --- Mock implementations ---

var errNotImplemented = errors.New("not implemented")

type mockFeedbackService struct {
	submitFn   func(ctx context.Context, req app.SubmitFeedbackRequest) (*domain.FeedbackItem, error)
	listFn     func(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error)
	getFn      func(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error)
	classifyFn func(text string) (classifier.Result, error)
	statsFn    func(ctx context.Context, days int) (*app.FeedbackStats, error)
}

func (m *mockFeedbackService) Submit(ctx context.Context, req app.SubmitFeedbackRequest) (*domain.FeedbackItem, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockFeedbackService) List(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, errNotImplemented
}

func (m *mockFeedbackService) Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockFeedbackService) Classify(text string) (classifier.Result, error) {
	if m.classifyFn != nil {
		return m.classifyFn(text)
	}
	return classifier.Result{}, errNotImplemented
}

func (m *mockFeedbackService) Stats(ctx context.Context, days int) (*app.FeedbackStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, days)
	}
	return nil, errNotImplemented
}

type mockPollService struct {
	createFn     func(ctx context.Context, req app.CreatePollRequest) (*domain.Poll, error)
	voteFn       func(ctx context.Context, pollID uuid.UUID, optionID int, voterID string) (domain.PollTally, error)
	getFn        func(ctx context.Context, id uuid.UUID) (*app.PollView, error)
	listActiveFn func(ctx context.Context) ([]app.PollView, error)
	resultsFn    func(ctx context.Context) ([]app.PollView, error)
	repairAllFn  func(ctx context.Context, dryRun bool) (*app.RepairReport, error)
}

func (m *mockPollService) Create(ctx context.Context, req app.CreatePollRequest) (*domain.Poll, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockPollService) Vote(ctx context.Context, pollID uuid.UUID, optionID int, voterID string) (domain.PollTally, error) {
	if m.voteFn != nil {
		return m.voteFn(ctx, pollID, optionID, voterID)
	}
	return domain.PollTally{}, errNotImplemented
}

func (m *mockPollService) Get(ctx context.Context, id uuid.UUID) (*app.PollView, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockPollService) ListActive(ctx context.Context) ([]app.PollView, error) {
	if m.listActiveFn != nil {
		return m.listActiveFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockPollService) Results(ctx context.Context) ([]app.PollView, error) {
	if m.resultsFn != nil {
		return m.resultsFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockPollService) RepairAll(ctx context.Context, dryRun bool) (*app.RepairReport, error) {
	if m.repairAllFn != nil {
		return m.repairAllFn(ctx, dryRun)
	}
	return nil, errNotImplemented
}

type mockAlertService struct {
	recentFn func(ctx context.Context, n int) ([]domain.Alert, error)
}

func (m *mockAlertService) Recent(ctx context.Context, n int) ([]domain.Alert, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, n)
	}
	return nil, errNotImplemented
}

type mockDashboardService struct {
	snapshotFn func(ctx context.Context) (*app.Dashboard, error)
}

func (m *mockDashboardService) Snapshot(ctx context.Context) (*app.Dashboard, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return nil, errNotImplemented
}

// --- Test helpers ---

const testStaffToken = "staff-token-0123456789"

func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		config: &config.Config{
			Port:               "0",
			AdminAPIToken:      testStaffToken,
			RateLimitPerSecond: 100,
			RateLimitBurst:     100,
		},
		feedback:  &mockFeedbackService{},
		polls:     &mockPollService{},
		alerts:    &mockAlertService{},
		dashboard: &mockDashboardService{},
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.echo = echo.New()
	srv.registerRoutes()

	return srv
}

func withFeedback(f *mockFeedbackService) func(*Server) {
	return func(s *Server) { s.feedback = f }
}

func withPolls(p *mockPollService) func(*Server) {
	return func(s *Server) { s.polls = p }
}

func withAlerts(a *mockAlertService) func(*Server) {
	return func(s *Server) { s.alerts = a }
}

func withDashboard(d *mockDashboardService) func(*Server) {
	return func(s *Server) { s.dashboard = d }
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) { s.healthChecks = checks }
}

func withRateLimit(perSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.RateLimitPerSecond = perSecond
		s.config.RateLimitBurst = burst
	}
}

// do sends a request through the full router and middleware chain.
func do(srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}
