package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatbroker/internal/config"
	"chatbroker/internal/core"
	"chatbroker/internal/service/chat"
	"chatbroker/internal/store"
)

// NewServer builds the HTTP server: REST endpoints for the unary
// operations and /ws for the session stream.
func NewServer(hub *core.Hub, chatService *chat.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	handlers := NewAPIHandlers(chatService, hub, logger)

	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	{
		api.POST("/users", handlers.CreateUser)
		api.GET("/users", handlers.ListUsers)
		api.GET("/users/search", handlers.SearchUsers)
		api.GET("/users/by-name/:name", handlers.FindUserByName)
		api.GET("/users/:id/groups", handlers.ListGroupsOf)
		api.GET("/users/:id/history", handlers.GetHistory)
		api.POST("/groups", handlers.CreateGroup)
		api.GET("/groups", handlers.ListGroups)
		api.POST("/groups/join", handlers.JoinGroup)
		api.GET("/stats", handlers.Stats)
	}

	// The websocket upgrade hijacks the connection, and gin's response
	// writer refuses a hijack once the 101 is written, so /ws mounts on
	// the outer mux.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, st, cfg.WSHandshakeLimit, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
