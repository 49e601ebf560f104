package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/WamalwaSydney/civicpulse/internal/app"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	apperrors "github.com/WamalwaSydney/civicpulse/internal/platform/errors"
)

func (s *Server) registerFeedbackRoutes(api *echo.Group, rateLimit echo.MiddlewareFunc) {
	api.POST("/feedback", s.handleSubmitFeedback, rateLimit)
	api.GET("/feedback", s.handleListFeedback)
	api.GET("/feedback/stats", s.handleFeedbackStats)
	api.GET("/feedback/:id", s.handleGetFeedback)
	api.POST("/classify", s.handleClassify)
}

type submitFeedbackRequest struct {
	UserID   string `json:"user_id"`
	Content  string `json:"content"`
	Location string `json:"location"`
	Gender   string `json:"gender"`
	Contact  string `json:"contact"`
	Language string `json:"language"`
	Source   string `json:"source"`
}

func (s *Server) handleSubmitFeedback(c echo.Context) error {
	var req submitFeedbackRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body").WithCause(err)
	}

	item, err := s.feedback.Submit(c.Request().Context(), app.SubmitFeedbackRequest{
		UserID:   req.UserID,
		Content:  req.Content,
		Location: req.Location,
		Gender:   req.Gender,
		Contact:  req.Contact,
		Language: req.Language,
		Source:   req.Source,
	})
	if err != nil {
		return domainError(err, "failed to submit feedback")
	}

	return writeJSON(c, http.StatusCreated, toFeedbackResponse(*item))
}

func (s *Server) handleListFeedback(c echo.Context) error {
	var filter domain.FeedbackFilter
	var sentiment string
	if err := echo.QueryParamsBinder(c).
		Int("page", &filter.Page).
		Int("per_page", &filter.PerPage).
		String("sentiment", &sentiment).
		String("location", &filter.Location).
		BindError(); err != nil {
		return apperrors.ValidationError("invalid query parameters").WithCause(err)
	}

	if sentiment != "" {
		label, ok := domain.ParseSentimentLabel(sentiment)
		if !ok {
			return apperrors.ValidationError("sentiment must be positive, neutral or negative").WithField("sentiment", sentiment)
		}
		filter.Sentiment = label
	}

	page, err := s.feedback.List(c.Request().Context(), filter)
	if err != nil {
		return domainError(err, "failed to list feedback")
	}

	return writeJSON(c, http.StatusOK, toFeedbackPageResponse(page))
}

func (s *Server) handleGetFeedback(c echo.Context) error {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return apperrors.ValidationError("invalid feedback ID").WithField("id", idStr)
	}

	item, err := s.feedback.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "failed to load feedback").WithField("id", idStr)
	}

	return writeJSON(c, http.StatusOK, toFeedbackResponse(*item))
}

func (s *Server) handleFeedbackStats(c echo.Context) error {
	var days int
	if err := echo.QueryParamsBinder(c).Int("days", &days).BindError(); err != nil {
		return apperrors.ValidationError("days must be an integer").WithCause(err)
	}

	stats, err := s.feedback.Stats(c.Request().Context(), days)
	if err != nil {
		return domainError(err, "failed to compute feedback statistics")
	}

	return writeJSON(c, http.StatusOK, stats)
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleClassify(c echo.Context) error {
	var req classifyRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body").WithCause(err)
	}

	result, err := s.feedback.Classify(req.Text)
	if err != nil {
		return domainError(err, "failed to classify text")
	}

	return writeJSON(c, http.StatusOK, result)
}
