package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/auth"
	"github.com/vovakirdan/eventure-server/internal/config"
	"github.com/vovakirdan/eventure-server/internal/core"
	"github.com/vovakirdan/eventure-server/internal/proto"
	"github.com/vovakirdan/eventure-server/internal/service/conversations"
)

// Broker manages connection membership in broadcast groups.
type Broker interface {
	RegisterClient(c *core.Client)
	UnregisterClient(c *core.Client)
	Join(c *core.Client, group string)
	Leave(c *core.Client, group string)
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub           Broker
	auth          *auth.Service
	conversations *conversations.Service
	readLimit     int64
	rateLimit     int
	origins       []string
	log           *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub Broker, authService *auth.Service, conv *conversations.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{
		hub:           hub,
		auth:          authService,
		conversations: conv,
		readLimit:     cfg.MaxMessageBytes,
		rateLimit:     cfg.WSRateLimit,
		origins:       cfg.WSOriginPatterns,
		log:           logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity, err := h.auth.Authenticate(r.Context(), tokenFromRequest(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws authentication failed")
		stdhttp.Error(w, "unauthorized", stdhttp.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	client := core.NewClient(uuid.NewString(), identity.UserID, identity.DisplayName)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("user_id", client.UserID).Msg("ws client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.rateLimit)

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		if !limiter.allow(time.Now()) {
			if err := writeError(ctx, conn, core.ErrCodeRateLimited, "too many messages"); err != nil {
				return err
			}
			continue
		}

		req, protoErr := parseInbound(inbound)
		if protoErr != nil {
			if err := wsjson.Write(ctx, conn, proto.Outbound{Type: proto.OutboundTypeError, Error: protoErr}); err != nil {
				return err
			}
			continue
		}

		group := core.ConversationGroup(req.conversationID)
		switch req.kind {
		case proto.InboundTypeJoin:
			if _, err := h.conversations.Get(ctx, req.conversationID, client.UserID); err != nil {
				code, msg := core.ErrCodeNotParticipant, "not a participant of this conversation"
				if !errors.Is(err, conversations.ErrConversationNotFound) {
					h.log.Error().Err(err).Str("client_id", client.ID).Int64("conversation_id", req.conversationID).Msg("participant check failed")
					code, msg = core.ErrCodeInternal, "internal error"
				}
				if err := writeError(ctx, conn, code, msg); err != nil {
					return err
				}
				continue
			}
			h.hub.Join(client, group)
		case proto.InboundTypeLeave:
			h.hub.Leave(client, group)
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, code, msg string) error {
	return wsjson.Write(ctx, conn, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}

// tokenFromRequest reads the token from the query string or a bearer header.
func tokenFromRequest(r *stdhttp.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}
	return ""
}
