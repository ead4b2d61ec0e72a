package http

import (
	"errors"
	"net/http"

	"github.com/decred/slog"
	"github.com/gin-gonic/gin"

	"contest-settlement/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func jsonError(c *gin.Context, status int, message ...string) {
	msg := ""
	if len(message) > 0 {
		msg = message[0]
	}
	c.JSON(status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: msg,
	})
}

var notFound = []error{
	domain.ErrContestNotFound,
	domain.ErrParticipantNotFound,
	domain.ErrAnswerKeyNotFound,
}

// statusFor maps an error to its HTTP status by class.
func statusFor(err error) int {
	for _, target := range notFound {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	switch domain.Class(err) {
	case domain.ClassMalformedInput:
		return http.StatusBadRequest
	case domain.ClassIntegrity:
		return http.StatusUnprocessableEntity
	case domain.ClassStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler renders the last error a handler attached with c.Error.
func errorHandler(log slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
			jsonError(c, status)
			return
		}
		log.Debugf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		jsonError(c, status, err.Error())
	}
}

// requestLogger logs each request at debug level.
func requestLogger(log slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Debugf("%s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}
