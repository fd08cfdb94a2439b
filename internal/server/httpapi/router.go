// Package httpapi exposes the directory's REST surface and mounts the relay
// websocket endpoints.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/randomio/pair/internal/config"
	"github.com/randomio/pair/internal/server/relay"
	"github.com/randomio/pair/internal/server/store"
)

func SetupRouter(cfg *config.ServerConfig, st *store.Store, hub *relay.Hub, media *relay.MediaRelay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	h := &roomHandlers{store: st}

	api := r.Group("/api")
	api.POST("/rooms", h.create)
	api.GET("/rooms", h.find)
	api.PUT("/rooms/:id", h.release)

	api.GET("/ws/channel", gin.WrapF(hub.HandleChannel))
	api.GET("/ws/media", gin.WrapF(media.HandleMedia))

	log.Info().Str("module", "server.httpapi").Msg("router setup")
	return r
}
