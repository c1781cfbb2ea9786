package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CountResponse is the body of every unread-count endpoint.
type CountResponse struct {
	Count int `json:"count"`
}

// currentUser returns the authenticated user id set by AuthMiddleware.
func currentUser(c *gin.Context, logger *zerolog.Logger) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		logger.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return "", false
	}

	uid, ok := userID.(string)
	if !ok || uid == "" {
		logger.Error().Msg("invalid user_id type in context")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return "", false
	}
	return uid, true
}

// pathID parses a positive int64 path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
