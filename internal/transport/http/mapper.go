package http

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/eventure-server/internal/core"
	"github.com/vovakirdan/eventure-server/internal/proto"
	"github.com/vovakirdan/eventure-server/internal/service/comments"
	"github.com/vovakirdan/eventure-server/internal/service/conversations"
	"github.com/vovakirdan/eventure-server/internal/store"
)

const timeFormat = time.RFC3339Nano

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID           int64    `json:"id"`
	Participants []string `json:"participants"`
	CreatedAt    string   `json:"created_at"`
	LastActivity string   `json:"last_activity,omitempty"`
	Unread       *int     `json:"unread,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	SentAt         string `json:"sent_at"`
	IsRead         bool   `json:"is_read"`
}

// ConversationViewResponse is an opened conversation.
type ConversationViewResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
	IsRead    bool   `json:"is_read"`
	EventID   *int64 `json:"event_id,omitempty"`
}

// EventResponse represents an event in API responses.
type EventResponse struct {
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	Location        string   `json:"location"`
	MaxParticipants *int     `json:"max_participants,omitempty"`
	OrganizerID     string   `json:"organizer_id"`
	CreatedAt       string   `json:"created_at"`
	Participants    []string `json:"participants,omitempty"`
}

// CommentResponse is one node of a comment thread.
type CommentResponse struct {
	ID              int64             `json:"id"`
	UserID          string            `json:"user_id"`
	AuthorName      string            `json:"author_name,omitempty"`
	Content         string            `json:"content"`
	CreatedAt       string            `json:"created_at"`
	ParentCommentID *int64            `json:"parent_comment_id,omitempty"`
	Replies         []CommentResponse `json:"replies"`
}

func conversationToResponse(conv *store.Conversation) ConversationResponse {
	participants := conv.Participants
	if participants == nil {
		participants = []string{}
	}
	return ConversationResponse{
		ID:           conv.ID,
		Participants: participants,
		CreatedAt:    conv.CreatedAt.UTC().Format(timeFormat),
	}
}

func summaryToResponse(s conversations.Summary) ConversationResponse {
	resp := conversationToResponse(s.Conversation)
	resp.LastActivity = s.LastActivity.UTC().Format(timeFormat)
	unread := s.Unread
	resp.Unread = &unread
	return resp
}

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		SentAt:         m.SentAt.UTC().Format(timeFormat),
		IsRead:         m.IsRead,
	}
}

func messagesToResponse(list []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(list))
	for _, m := range list {
		out = append(out, messageToResponse(m))
	}
	return out
}

func notificationsToResponse(list []*store.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			Message:   n.Message,
			CreatedAt: n.CreatedAt.UTC().Format(timeFormat),
			IsRead:    n.IsRead,
			EventID:   n.EventID,
		})
	}
	return out
}

func eventToResponse(ev *store.Event, participants []string) EventResponse {
	return EventResponse{
		ID:              ev.ID,
		Title:           ev.Title,
		Description:     ev.Description,
		StartTime:       ev.StartTime.UTC().Format(timeFormat),
		EndTime:         ev.EndTime.UTC().Format(timeFormat),
		Location:        ev.Location,
		MaxParticipants: ev.MaxParticipants,
		OrganizerID:     ev.OrganizerID,
		CreatedAt:       ev.CreatedAt.UTC().Format(timeFormat),
		Participants:    participants,
	}
}

func commentToResponse(c *store.Comment, authorName string) CommentResponse {
	return CommentResponse{
		ID:              c.ID,
		UserID:          c.UserID,
		AuthorName:      authorName,
		Content:         c.Content,
		CreatedAt:       c.CreatedAt.UTC().Format(timeFormat),
		ParentCommentID: c.ParentCommentID,
		Replies:         []CommentResponse{},
	}
}

func threadToResponse(nodes []*comments.Node) []CommentResponse {
	out := make([]CommentResponse, 0, len(nodes))
	for _, n := range nodes {
		resp := commentToResponse(n.Comment, n.AuthorName)
		resp.Replies = threadToResponse(n.Replies)
		out = append(out, resp)
	}
	return out
}

// groupRequest is a validated join or leave request.
type groupRequest struct {
	kind           string
	conversationID int64
}

func parseInbound(inbound proto.Inbound) (*groupRequest, *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var data proto.GroupData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid data"}
		}
		if data.ConversationID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "conversation_id is required"}
		}
		return &groupRequest{kind: inbound.Type, conversationID: data.ConversationID}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeInvalidMessage, Msg: "unknown message type"}
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventPublished:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: event.Name,
			Data:  event.Payload,
		}
	case core.EventJoined:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventJoined,
			Data:  groupData(event.Group),
		}
	case core.EventLeft:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventLeft,
			Data:  groupData(event.Group),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func groupData(key string) proto.GroupData {
	id, _ := core.ParseConversationGroup(key)
	return proto.GroupData{ConversationID: id}
}
