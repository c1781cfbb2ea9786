package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/service/comments"
	"github.com/vovakirdan/eventure-server/internal/service/events"
)

// EventHandlers provides HTTP handlers for events and their comments.
type EventHandlers struct {
	events   *events.Service
	comments *comments.Service
	log      *zerolog.Logger
}

// NewEventHandlers creates a new event handlers instance.
func NewEventHandlers(eventService *events.Service, commentService *comments.Service, logger *zerolog.Logger) *EventHandlers {
	return &EventHandlers{
		events:   eventService,
		comments: commentService,
		log:      logger,
	}
}

// EventRequest is the body of event create and update.
type EventRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	Location        string    `json:"location"`
	MaxParticipants *int      `json:"max_participants"`
}

func (r EventRequest) details() events.Details {
	return events.Details{
		Title:           r.Title,
		Description:     r.Description,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Location:        r.Location,
		MaxParticipants: r.MaxParticipants,
	}
}

// AddCommentRequest is the body of a new comment.
type AddCommentRequest struct {
	Content         string `json:"content" binding:"required"`
	ParentCommentID *int64 `json:"parent_comment_id"`
}

// writeEventError maps event and comment errors to responses. Returns false for unknown errors.
func writeEventError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, events.ErrEventNotFound), errors.Is(err, comments.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "event not found"})
	case errors.Is(err, events.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, events.ErrEmptyTitle), errors.Is(err, events.ErrInvalidTimes), errors.Is(err, events.ErrInvalidLimit):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, events.ErrAlreadyJoined), errors.Is(err, events.ErrEventFull):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, events.ErrNotJoined):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, comments.ErrEmptyContent), errors.Is(err, comments.ErrContentTooLong),
		errors.Is(err, comments.ErrParentMismatch):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, comments.ErrParentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	default:
		return false
	}
	return true
}

// Create handles event creation.
// POST /api/events
func (h *EventHandlers) Create(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create event request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ev, err := h.events.Create(c.Request.Context(), uid, req.details())
	if err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Str("user_id", uid).Msg("failed to create event")
			internalError(c)
		}
		return
	}
	c.JSON(http.StatusCreated, eventToResponse(ev, []string{}))
}

// Get returns an event with its participants.
// GET /api/events/:id
func (h *EventHandlers) Get(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ev, err := h.events.Get(c.Request.Context(), eventID)
	if err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to get event")
			internalError(c)
		}
		return
	}
	participants, err := h.events.Participants(c.Request.Context(), eventID)
	if err != nil {
		h.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to list participants")
		internalError(c)
		return
	}
	if participants == nil {
		participants = []string{}
	}
	c.JSON(http.StatusOK, eventToResponse(ev, participants))
}

// Update overwrites an event; participants get one notification summarizing the changes.
// PUT /api/events/:id
func (h *EventHandlers) Update(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid update event request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ev, err := h.events.Update(c.Request.Context(), eventID, uid, req.details())
	if err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Str("user_id", uid).Int64("event_id", eventID).Msg("failed to update event")
			internalError(c)
		}
		return
	}
	c.JSON(http.StatusOK, eventToResponse(ev, nil))
}

// Join adds the caller to the event.
// POST /api/events/:id/join
func (h *EventHandlers) Join(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.events.Join(c.Request.Context(), eventID, uid); err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Str("user_id", uid).Int64("event_id", eventID).Msg("failed to join event")
			internalError(c)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// Leave removes the caller from the event.
// POST /api/events/:id/leave
func (h *EventHandlers) Leave(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.events.Leave(c.Request.Context(), eventID, uid); err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Str("user_id", uid).Int64("event_id", eventID).Msg("failed to leave event")
			internalError(c)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

// ListComments returns the event's comments as reply trees.
// GET /api/events/:id/comments
func (h *EventHandlers) ListComments(c *gin.Context) {
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	roots, err := h.comments.Threaded(c.Request.Context(), eventID)
	if err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to list comments")
			internalError(c)
		}
		return
	}
	c.JSON(http.StatusOK, threadToResponse(roots))
}

// AddComment posts a comment or reply.
// POST /api/events/:id/comments
func (h *EventHandlers) AddComment(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	eventID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid add comment request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	comment, err := h.comments.Add(c.Request.Context(), eventID, uid, req.Content, req.ParentCommentID)
	if err != nil {
		if !writeEventError(c, err) {
			h.log.Error().Err(err).Str("user_id", uid).Int64("event_id", eventID).Msg("failed to add comment")
			internalError(c)
		}
		return
	}

	name, _ := c.Get(ContextKeyDisplayName)
	authorName, _ := name.(string)
	c.JSON(http.StatusCreated, commentToResponse(comment, authorName))
}
