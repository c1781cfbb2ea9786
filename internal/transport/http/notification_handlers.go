package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/service/notifications"
)

// NotificationHandlers provides HTTP handlers for notification endpoints.
type NotificationHandlers struct {
	service *notifications.Service
	log     *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(svc *notifications.Service, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{
		service: svc,
		log:     logger,
	}
}

// MarkAllReadResponse reports how many notifications changed.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// List returns all of the caller's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandlers) List(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	list, err := h.service.All(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list notifications")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, notificationsToResponse(list))
}

// Unread returns the caller's unread notifications, newest first.
// GET /api/notifications/unread
func (h *NotificationHandlers) Unread(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	list, err := h.service.Unread(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list unread notifications")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, notificationsToResponse(list))
}

// UnreadCount returns the number of unread notifications.
// GET /api/notifications/unread-count
func (h *NotificationHandlers) UnreadCount(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to count unread notifications")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: count})
}

// MarkRead marks one of the caller's notifications read. Unknown ids are a no-op.
// POST /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkReadFor(c.Request.Context(), uid, id); err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Int64("notification_id", id).Msg("failed to mark notification read")
		internalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead marks every unread notification of the caller read.
// POST /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	n, err := h.service.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to mark notifications read")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, MarkAllReadResponse{Updated: n})
}
