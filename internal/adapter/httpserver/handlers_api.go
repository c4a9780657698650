package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/pollpulse/internal/domain"
	apperrors "github.com/pscheid92/pollpulse/internal/platform/errors"
)

const maxRequestBody = "64K"

type createPollRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// createPollResponse repeats the poll ID as pollId for clients that only read that field.
type createPollResponse struct {
	PollID string `json:"pollId"`
	domain.Poll
}

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", middleware.BodyLimit(maxRequestBody))
	api.POST("/polls", s.handleCreatePoll, newRateLimiter(s.config.CreateRateLimit, s.config.CreateRateBurst))
	api.GET("/polls/:pollId", s.handleGetPoll)
}

func (s *Server) handleCreatePoll(c echo.Context) error {
	ctx := c.Request().Context()

	var req createPollRequest
	if err := c.Bind(&req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return WrapHTTPError(httpErr)
		}
		return apperrors.ValidationError("invalid request body")
	}

	poll, err := s.app.CreatePoll(ctx, req.Question, req.Options)
	if errors.Is(err, domain.ErrValidation) {
		return apperrors.ValidationError(err.Error())
	}
	if err != nil {
		return apperrors.InternalError("failed to create poll", err)
	}

	if err := c.JSON(http.StatusCreated, createPollResponse{PollID: poll.ID, Poll: poll}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetPoll(c echo.Context) error {
	ctx := c.Request().Context()
	pollID := c.Param("pollId")

	poll, err := s.app.GetPoll(ctx, pollID)
	if errors.Is(err, domain.ErrPollNotFound) {
		return apperrors.NotFoundError("poll not found").WithField("poll_id", pollID)
	}
	if err != nil {
		return apperrors.InternalError("failed to load poll", err).WithField("poll_id", pollID)
	}

	if err := c.JSON(http.StatusOK, poll); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
