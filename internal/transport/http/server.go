package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/core"
	"github.com/vovakirdan/counselchat/internal/room"
)

// Hub is the part of the coordinator the transport talks to.
type Hub interface {
	Attach(c *core.Client)
	Detach(c *core.Client)
	Submit(c *core.Client, cmd *core.Command)
	Stats(ctx context.Context) (core.Stats, error)
	Rooms() *room.Manager
}

var _ Hub = (*core.Hub)(nil)

// NewServer builds the HTTP server with the WebSocket endpoint, the public
// API and the operational routes.
func NewServer(hub Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(logger))

	r.GET("/health", healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := NewWSHandler(hub, cfg, logger)
	r.GET("/ws", ws.Handle)

	api := NewAPIHandlers(hub, logger)
	r.GET("/api/rooms", api.ListRooms)
	r.GET("/api/stats", AuthMiddleware(authService, logger), api.Stats)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
