package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/classifier"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/config"
)

type feedbackService interface {
	Submit(ctx context.Context, req app.SubmitFeedbackRequest) (*domain.FeedbackItem, error)
	List(ctx context.Context, filter domain.FeedbackFilter) (*domain.FeedbackPage, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.FeedbackItem, error)
	Classify(text string) (classifier.Result, error)
	Stats(ctx context.Context, days int) (*app.FeedbackStats, error)
}

type pollService interface {
	Create(ctx context.Context, req app.CreatePollRequest) (*domain.Poll, error)
	Vote(ctx context.Context, pollID uuid.UUID, optionID int, voterID string) (domain.PollTally, error)
	Get(ctx context.Context, id uuid.UUID) (*app.PollView, error)
	ListActive(ctx context.Context) ([]app.PollView, error)
	Results(ctx context.Context) ([]app.PollView, error)
	RepairAll(ctx context.Context, dryRun bool) (*app.RepairReport, error)
}

type alertService interface {
	Recent(ctx context.Context, n int) ([]domain.Alert, error)
}

type dashboardService interface {
	Snapshot(ctx context.Context) (*app.Dashboard, error)
}

// Services bundles the application services the HTTP surface calls into.
type Services struct {
	Feedback  feedbackService
	Polls     pollService
	Alerts    alertService
	Dashboard dashboardService

	// RateLimits backs the public write limiter. Nil keeps buckets in process
	// memory, which only holds for a single instance.
	RateLimits middleware.RateLimiterStore
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	feedback  feedbackService
	polls     pollService
	alerts    alertService
	dashboard dashboardService

	rateLimits     middleware.RateLimiterStore
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer builds the echo server. httpMetrics and metricsHandler may be nil,
// in which case request metrics and /metrics are not served.
func NewServer(cfg *config.Config, services Services, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:           e,
		config:         cfg,
		feedback:       services.Feedback,
		polls:          services.Polls,
		alerts:         services.Alerts,
		dashboard:      services.Dashboard,
		rateLimits:     services.RateLimits,
		httpMetrics:    httpMetrics,
		metricsHandler: metricsHandler,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
