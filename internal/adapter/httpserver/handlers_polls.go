package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/WamalwaSydney/civicpulse/internal/app"
	apperrors "github.com/WamalwaSydney/civicpulse/internal/platform/errors"
)

// VoterHeader identifies a voter when the body carries no voter_id.
const VoterHeader = "X-Voter-ID"

func (s *Server) registerPollRoutes(api *echo.Group, rateLimit, staff echo.MiddlewareFunc) {
	api.POST("/polls", s.handleCreatePoll, staff)
	api.GET("/polls", s.handleListActivePolls)
	api.GET("/polls/results", s.handlePollResults)
	api.POST("/polls/repair", s.handleRepairPolls, staff)
	api.GET("/polls/:id", s.handleGetPoll)
	api.POST("/polls/:id/vote", s.handleVote, rateLimit)
}

type createPollRequest struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	DurationDays int      `json:"duration_days"`
	CreatedBy    string   `json:"created_by"`
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	ctx := c.Request().Context()

	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body").WithCause(err)
	}

	p, err := s.polls.Create(ctx, app.CreatePollRequest{
		Question:     req.Question,
		Options:      req.Options,
		DurationDays: req.DurationDays,
		CreatedBy:    req.CreatedBy,
	})
	if err != nil {
		return domainError(err, "failed to create poll")
	}

	view, err := s.polls.Get(ctx, p.ID)
	if err != nil {
		return domainError(err, "failed to load created poll").WithField("poll_id", p.ID.String())
	}

	return writeJSON(c, http.StatusCreated, toPollResponse(*view))
}

func (s *Server) handleListActivePolls(c echo.Context) error {
	views, err := s.polls.ListActive(c.Request().Context())
	if err != nil {
		return domainError(err, "failed to list polls")
	}
	return writeJSON(c, http.StatusOK, map[string]any{"polls": toPollResponses(views)})
}

func (s *Server) handlePollResults(c echo.Context) error {
	views, err := s.polls.Results(c.Request().Context())
	if err != nil {
		return domainError(err, "failed to load poll results")
	}
	return writeJSON(c, http.StatusOK, map[string]any{"polls": toPollResponses(views)})
}

func (s *Server) handleGetPoll(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	view, err := s.polls.Get(c.Request().Context(), id)
	if err != nil {
		return domainError(err, "failed to load poll").WithField("poll_id", id.String())
	}

	return writeJSON(c, http.StatusOK, toPollResponse(*view))
}

type voteRequest struct {
	OptionID *int   `json:"option_id"`
	VoterID  string `json:"voter_id"`
}

func (s *Server) handleVote(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := pollIDParam(c)
	if err != nil {
		return err
	}

	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body").WithCause(err)
	}
	if req.OptionID == nil {
		return apperrors.ValidationError("option_id is required").WithField("field", "option_id")
	}

	tally, err := s.polls.Vote(ctx, id, *req.OptionID, voterID(c, req.VoterID))
	if err != nil {
		return domainError(err, "failed to record vote").
			WithField("poll_id", id.String()).
			WithField("option_id", *req.OptionID)
	}

	return writeJSON(c, http.StatusOK, voteResponse{
		Status:         "success",
		PollID:         id,
		SelectedOption: *req.OptionID,
		TotalVotes:     tally.TotalVotes,
		Options:        tally.Options,
	})
}

func (s *Server) handleRepairPolls(c echo.Context) error {
	ctx := c.Request().Context()

	var dryRun bool
	if err := echo.QueryParamsBinder(c).Bool("dry_run", &dryRun).BindError(); err != nil {
		return apperrors.ValidationError("dry_run must be a boolean").WithCause(err)
	}

	report, err := s.polls.RepairAll(ctx, dryRun)
	if err != nil {
		return domainError(err, "failed to repair polls")
	}

	slog.InfoContext(ctx, "Poll repair requested", "total", report.Total, "fixed", report.Fixed, "dry_run", report.DryRun)

	ids := report.FixedIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return writeJSON(c, http.StatusOK, repairResponse{Total: report.Total, Fixed: report.Fixed, FixedIDs: ids, DryRun: report.DryRun})
}

func pollIDParam(c echo.Context) (uuid.UUID, error) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid poll ID").WithField("poll_id", idStr)
	}
	return id, nil
}

// voterID prefers the body's voter_id, then the X-Voter-ID header, then the client IP.
func voterID(c echo.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := c.Request().Header.Get(VoterHeader); h != "" {
		return h
	}
	return "ip:" + c.RealIP()
}
