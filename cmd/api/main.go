package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shinyyama/demart-backend/internal/config"
	"github.com/shinyyama/demart-backend/internal/db"
	appmw "github.com/shinyyama/demart-backend/internal/middleware"
	"github.com/shinyyama/demart-backend/internal/server"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}
	setupLogger(cfg)

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("db connect")
	}
	if err := db.Migrate(conn); err != nil {
		log.Fatal().Err(err).Msg("auto migrate")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts server.Options
	switch cfg.AuthMode {
	case config.AuthModeFirebase:
		fb, err := appmw.NewFirebaseAuth(ctx, cfg.FirebaseProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("init firebase auth")
		}
		opts.Verifier = fb
		opts.Users = fb
	case config.AuthModeHeader:
		log.Warn().Str("driver", cfg.DBDriver).Msg("AUTH_MODE=header: trusting X-User-Id, local use only")
		opts.Verifier = appmw.HeaderAuth{}
	default:
		log.Fatal().Str("auth_mode", cfg.AuthMode).Msg("unsupported auth mode")
	}

	srv := server.New(cfg, conn, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(":" + cfg.Port)
	})
	g.Go(func() error {
		return srv.Worker().Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("bye")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
