package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/WamalwaSydney/civicpulse/internal/adapter/metrics"
	"github.com/WamalwaSydney/civicpulse/internal/domain"
	"github.com/WamalwaSydney/civicpulse/internal/platform/correlation"
	apperrors "github.com/WamalwaSydney/civicpulse/internal/platform/errors"
)

// correlationMiddleware adopts a caller-supplied X-Request-ID or mints one,
// stores it in the request context and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.Resolve(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders handler errors as structured JSON. Echo's
// own HTTP errors (404 route, 413 body limit) pass through untouched. m may be nil.
func ErrorHandlingMiddleware(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// A structured error may wrap an echo bind error; the structured one wins.
			var structuredErr *apperrors.Error
			var httpErr *echo.HTTPError
			if !errors.As(err, &structuredErr) && errors.As(err, &httpErr) {
				return err
			}

			structuredErr = apperrors.AsStructuredError(err)
			logError(c, structuredErr)
			if m != nil {
				m.ErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			}

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeUnauthorized:
		slog.WarnContext(ctx, "Unauthorized", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeInternal, apperrors.TypeExternal, apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

// domainError maps a service error onto its transport type. Anything that is
// not a known domain failure becomes an internal error with msg.
func domainError(err error, msg string) *apperrors.Error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return apperrors.ValidationError(ve.Error()).WithField("field", ve.Field)
	case errors.Is(err, domain.ErrPollExpired), errors.Is(err, domain.ErrInvalidOption):
		return apperrors.ValidationError(err.Error())
	case errors.Is(err, domain.ErrAlreadyVoted):
		return apperrors.ConflictError(err.Error())
	case errors.Is(err, domain.ErrPollNotFound), errors.Is(err, domain.ErrFeedbackNotFound):
		return apperrors.NotFoundError(err.Error())
	default:
		return apperrors.InternalError(msg, err)
	}
}
