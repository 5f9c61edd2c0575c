package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/hivechat/relay/internal/adapters/http"
	"github.com/hivechat/relay/internal/app"
	"github.com/hivechat/relay/internal/collab"
	"github.com/hivechat/relay/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	verifier := collab.NewJWTVerifier(cfg.Secret)

	var authority collab.Authority
	if cfg.AuthorityURL != "" {
		authority = collab.NewHTTPAuthority(cfg.AuthorityURL)
	} else {
		// standalone mode: no persistence service to ask
		static := collab.NewStaticAuthority()
		static.AllowAll = true
		authority = static
		log.Warn().Msg("no authority_url configured, admitting everyone to every room")
	}

	var store collab.MessageStore = collab.NopStore{}
	if cfg.RedisAddr != "" {
		rs, err := collab.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			log.Error().Err(err).Msg("redis unreachable, messages will not be persisted")
		} else {
			store = rs
			defer rs.Close()
		}
	}

	gw := app.NewGateway(verifier, authority, store)

	r := router.SetupRouter(ctx, cfg, gw, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("relay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
