package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/service/conversations"
)

// ConversationHandlers provides HTTP handlers for direct messaging endpoints.
type ConversationHandlers struct {
	service *conversations.Service
	log     *zerolog.Logger
}

// NewConversationHandlers creates a new conversation handlers instance.
func NewConversationHandlers(svc *conversations.Service, logger *zerolog.Logger) *ConversationHandlers {
	return &ConversationHandlers{
		service: svc,
		log:     logger,
	}
}

// StartConversationRequest represents the start conversation request body.
type StartConversationRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Start resolves or creates the conversation with a recipient.
// POST /api/conversations
func (h *ConversationHandlers) Start(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	var req StartConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid start conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	conv, err := h.service.Start(c.Request.Context(), uid, req.RecipientID)
	if err != nil {
		switch {
		case errors.Is(err, conversations.ErrSelfConversation):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot start a conversation with yourself"})
		case errors.Is(err, conversations.ErrUserNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		default:
			h.log.Error().Err(err).Str("user_id", uid).Str("recipient_id", req.RecipientID).Msg("failed to start conversation")
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusOK, conversationToResponse(conv))
}

// List returns the caller's conversations, most recent activity first.
// GET /api/conversations
func (h *ConversationHandlers) List(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	summaries, err := h.service.ListForUser(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list conversations")
		internalError(c)
		return
	}

	response := make([]ConversationResponse, 0, len(summaries))
	for _, s := range summaries {
		response = append(response, summaryToResponse(s))
	}
	c.JSON(http.StatusOK, response)
}

// Open marks the conversation read for the caller and returns its history.
// GET /api/conversations/:id
func (h *ConversationHandlers) Open(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := h.service.Open(c.Request.Context(), convID, uid)
	if err != nil {
		if errors.Is(err, conversations.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
			return
		}
		h.log.Error().Err(err).Str("user_id", uid).Int64("conversation_id", convID).Msg("failed to open conversation")
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, ConversationViewResponse{
		Conversation: conversationToResponse(view.Conversation),
		Messages:     messagesToResponse(view.Messages),
	})
}

// Send appends a message and pushes it to viewers of the conversation.
// POST /api/conversations/:id/messages
func (h *ConversationHandlers) Send(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}
	convID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), convID, uid, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, conversations.ErrEmptyContent):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message content is empty"})
		case errors.Is(err, conversations.ErrConversationNotFound), errors.Is(err, conversations.ErrNotParticipant):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		default:
			h.log.Error().Err(err).Str("user_id", uid).Int64("conversation_id", convID).Msg("failed to send message")
			internalError(c)
		}
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg))
}

// UnreadCount returns the caller's unread message count across conversations.
// GET /api/messages/unread-count
func (h *ConversationHandlers) UnreadCount(c *gin.Context) {
	uid, ok := currentUser(c, h.log)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to count unread messages")
		internalError(c)
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: count})
}
