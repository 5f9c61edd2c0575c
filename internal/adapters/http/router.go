package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hivechat/relay/internal/adapters/signal"
	"github.com/hivechat/relay/internal/app"
	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/config"
	"github.com/hivechat/relay/internal/domain"
)

// ClientTokenMiddleware tags browsers that have not authenticated yet
// with a stable client token cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, gw *app.Gateway, store collab.MessageStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RelaySessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctl := signal.NewController(gw, cfg)
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// GET /api/rooms — every room with live members
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": gw.Rooms.List()})
	})

	// GET /api/rooms/:id/members — live members of a room
	api.GET("/rooms/:id/members", func(c *gin.Context) {
		room := domain.RoomID(c.Param("id"))
		c.JSON(http.StatusOK, gw.MembersSnapshot(room))
	})

	// GET /api/peers/status — active signaling sessions
	api.GET("/peers/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": gw.Peers.ActiveCount(),
		})
	})

	// GET /api/connections — gross connection count
	api.GET("/connections", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": gw.Registry.Count()})
	})

	return r
}
