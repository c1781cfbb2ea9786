package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/service/conversations"
	"github.com/vovakirdan/eventure-server/internal/service/notifications"
)

// UserHandlers provides HTTP handlers for the current user.
type UserHandlers struct {
	conversations *conversations.Service
	notifications *notifications.Service
	log           *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(conv *conversations.Service, notif *notifications.Service, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		conversations: conv,
		notifications: notif,
		log:           logger,
	}
}

// MeResponse is the caller's identity with both unread badges.
type MeResponse struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	UnreadMessages      int    `json:"unread_messages"`
	UnreadNotifications int    `json:"unread_notifications"`
}

// Me returns the authenticated user with unread counts.
// GET /api/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	name, _ := c.Get(ContextKeyDisplayName)
	displayName, _ := name.(string)

	ctx := c.Request.Context()
	messages, err := h.conversations.UnreadCount(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to count unread messages")
		internalError(c)
		return
	}
	notes, err := h.notifications.UnreadCount(ctx, uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to count unread notifications")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, MeResponse{
		ID:                  uid,
		DisplayName:         displayName,
		UnreadMessages:      messages,
		UnreadNotifications: notes,
	})
}
