package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/auth"
	"github.com/vovakirdan/eventure-server/internal/config"
	"github.com/vovakirdan/eventure-server/internal/service/comments"
	"github.com/vovakirdan/eventure-server/internal/service/conversations"
	"github.com/vovakirdan/eventure-server/internal/service/events"
	"github.com/vovakirdan/eventure-server/internal/service/notifications"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Auth          *auth.Service
	Conversations *conversations.Service
	Notifications *notifications.Service
	Events        *events.Service
	Comments      *comments.Service
}

// NewServer builds the HTTP server with REST and websocket routes.
func NewServer(hub Broker, svc Services, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, svc, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter serves /ws directly from the websocket handler and everything else from gin.
// The upgrade stays off gin's ResponseWriter, which refuses to hijack once the
// handshake status is written.
func NewRouter(hub Broker, svc Services, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, svc.Auth, svc.Conversations, cfg, logger))
	mux.Handle("/", newAPIRouter(svc, cfg, logger))
	return mux
}

// newAPIRouter registers the REST routes on a gin engine.
func newAPIRouter(svc Services, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), MetricsMiddleware(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	if cfg.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	conversationHandlers := NewConversationHandlers(svc.Conversations, logger)
	notificationHandlers := NewNotificationHandlers(svc.Notifications, logger)
	eventHandlers := NewEventHandlers(svc.Events, svc.Comments, logger)
	userHandlers := NewUserHandlers(svc.Conversations, svc.Notifications, logger)

	api := router.Group("/api", AuthMiddleware(svc.Auth, logger))
	{
		api.GET("/me", userHandlers.Me)

		api.POST("/conversations", conversationHandlers.Start)
		api.GET("/conversations", conversationHandlers.List)
		api.GET("/conversations/:id", conversationHandlers.Open)
		api.POST("/conversations/:id/messages", conversationHandlers.Send)
		api.GET("/messages/unread-count", conversationHandlers.UnreadCount)

		api.GET("/notifications", notificationHandlers.List)
		api.GET("/notifications/unread", notificationHandlers.Unread)
		api.GET("/notifications/unread-count", notificationHandlers.UnreadCount)
		api.POST("/notifications/read-all", notificationHandlers.MarkAllRead)
		api.POST("/notifications/:id/read", notificationHandlers.MarkRead)

		api.POST("/events", eventHandlers.Create)
		api.GET("/events/:id", eventHandlers.Get)
		api.PUT("/events/:id", eventHandlers.Update)
		api.POST("/events/:id/join", eventHandlers.Join)
		api.POST("/events/:id/leave", eventHandlers.Leave)
		api.GET("/events/:id/comments", eventHandlers.ListComments)
		api.POST("/events/:id/comments", eventHandlers.AddComment)
	}

	return router
}
