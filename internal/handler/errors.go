package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/quiz"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// errorCode maps service and upstream errors to API codes.
func errorCode(err error) response.ErrCode {
	switch {
	case errors.Is(err, quiz.ErrNotFound):
		return response.ErrTestNotFound
	case errors.Is(err, quiz.ErrRejected):
		return response.ErrUpstreamRejected
	case errors.Is(err, quiz.ErrUpstream), errors.Is(err, context.DeadlineExceeded):
		return response.ErrUpstreamUnavailable
	case errors.Is(err, quiz.ErrUnknownQuestion):
		return response.ErrUnknownQuestion
	case errors.Is(err, quiz.ErrUnknownAnswer):
		return response.ErrUnknownAnswer
	case errors.Is(err, service.ErrTestUnavailable):
		return response.ErrTestNotAvailable
	case errors.Is(err, service.ErrNoQuestions):
		return response.ErrNoQuestions
	case errors.Is(err, service.ErrSessionNotFound):
		return response.ErrSessionNotFound
	case errors.Is(err, service.ErrTicketInvalid):
		return response.ErrTicketInvalid
	default:
		return response.ErrInternal
	}
}

// failFromError sends the mapped error. Unmapped errors are logged since
// the client only sees INTERNAL_ERROR.
func failFromError(c *gin.Context, log zerolog.Logger, err error) {
	code := errorCode(err)
	if code == response.ErrInternal {
		reqID, _ := c.Get(response.ContextKeyRequestID)
		log.Error().Err(err).
			Interface("request_id", reqID).
			Str("path", c.FullPath()).
			Msg("Unhandled error")
	}
	response.FailCode(c, code)
}
