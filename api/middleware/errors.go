package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/pagewalk/models"
)

var (
	ErrMissingAPIKey = errors.New("missing API key: send X-API-Key or Authorization: Bearer <key>")
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRateLimited   = errors.New("rate limit exceeded, slow down")
)

// abort ends the request with the same error body the handlers use.
func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: code, Message: err.Error()},
	})
}
