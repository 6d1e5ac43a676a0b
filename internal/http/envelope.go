package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/session"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

func success(c echo.Context, code int, data any) error {
	return c.JSON(code, Envelope{Status: statusSuccess, Data: data})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrBusy), errors.Is(err, orchestrator.ErrNoPendingQuestions):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoGoal):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrEmptyPlan), errors.Is(err, task.ErrInvalidStatus):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// handleError renders every error as an error envelope.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= http.StatusInternalServerError && code != http.StatusBadGateway {
		s.logger.Error("request failed", zap.Error(err), zap.String("uri", c.Request().RequestURI))
		msg = http.StatusText(code)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(code)
	} else {
		werr = c.JSON(code, Envelope{Status: statusError, Message: msg})
	}
	if werr != nil {
		s.logger.Warn("writing error response failed", zap.Error(werr))
	}
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
