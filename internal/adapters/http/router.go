package http

import (
	"context"

	"github.com/dkeye/Presence/internal/adapters/signal"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/app/stats"
	"github.com/dkeye/Presence/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Orch    *orch.Orchestrator
	Stats   *stats.Aggregator
	Limiter *signal.JoinRateLimiter
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("PresenceSessions", store))
	r.Use(ClientTokenMiddleware())
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}
	r.Use(Metrics())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	ctrl := signal.NewSignalWSController(deps.Orch, deps.Limiter, cfg.ReadLimit, cfg.PingPeriod)
	api.GET("/ws/:kind", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/rooms", listRooms(deps.Orch.Registry))
	api.GET("/stats", getStats(deps.Stats))
	api.GET("/stats/stream", streamStats(deps.Stats))

	if cfg.AdminToken != "" {
		api.DELETE("/rooms/:id", AdminAuth(cfg.AdminToken), evictRoom(deps.Orch))
	}

	return r
}
