package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	router "github.com/dkeye/Presence/internal/adapters/http"
	"github.com/dkeye/Presence/internal/adapters/redisstats"
	sig "github.com/dkeye/Presence/internal/adapters/signal"
	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/app/stats"
	"github.com/dkeye/Presence/internal/config"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	switch cfg.Mode {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "release":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	content := make([]app.Content, 0, len(cfg.Content))
	for _, c := range cfg.Content {
		content = append(content, app.Content{ID: c.ID, Title: c.Title})
	}
	reg := app.NewRegistry(ctx, roomConfigs(cfg.Rooms), app.NewStaticContent(content))
	defer reg.Close()

	var sinks []stats.Sink
	if cfg.Redis.URL != "" {
		sink, err := redisstats.New(ctx, cfg.Redis.URL, cfg.Redis.Channel, cfg.Redis.Key, cfg.Redis.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis stats sink")
		}
		defer sink.Close()
		sinks = append(sinks, sink)
		log.Info().Str("channel", cfg.Redis.Channel).Msg("redis stats sink enabled")
	}
	agg := stats.New(reg, stats.Config{
		Interval:     cfg.Stats.Interval,
		KnownBuckets: cfg.Stats.KnownBuckets,
	}, sinks...)

	limiter := sig.NewJoinRateLimiter(cfg.Signal.JoinLimit, cfg.Signal.JoinWindow)
	o := orch.New(reg, app.SimplePolicy{})

	r := router.SetupRouter(ctx, cfg, router.Deps{Orch: o, Stats: agg, Limiter: limiter})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Presence server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return agg.Run(gctx) })
	g.Go(func() error { return limiter.Run(gctx) })
	g.Go(func() error { return pushSummaries(gctx, agg, reg) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("Server exited gracefully")
}

func roomConfigs(rc config.RoomsConfig) map[domain.RoomKind]core.RoomConfig {
	base := core.RoomConfig{
		MaxClients:  rc.MaxClients,
		IdleTimeout: rc.IdleTimeout,
		GracePeriod: rc.GracePeriod,
		CursorRate:  rate.Limit(rc.CursorRate),
		CursorBurst: rc.CursorBurst,
	}
	lobby, page, post := base, base, base
	lobby.TickInterval = rc.LobbyTick
	page.TickInterval = rc.PageTick
	post.TickInterval = rc.PostTick
	return map[domain.RoomKind]core.RoomConfig{
		domain.KindLobby: lobby,
		domain.KindPage:  page,
		domain.KindPost:  post,
	}
}

// pushSummaries forwards every stats snapshot into the lobby rooms.
func pushSummaries(ctx context.Context, agg *stats.Aggregator, reg *app.Registry) error {
	sub := agg.Subscribe()
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			reg.PublishSummaries(snap)
		}
	}
}
