package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/api"
	"github.com/urmzd/wallpad/pkg/api/docs"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/device/schema"
	"github.com/urmzd/wallpad/pkg/service"
)

// @title           Wallpad API
// @version         1.0
// @description     REST API for devices on a KS X 4506 home-network bus

// @host      localhost:8080
// @BasePath  /api/v1
// @schemes   http https

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/wallpad/wallpad.db)")
	busPort := flag.String("bus", "", "Override the stored bus port (serial device or host:port)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Prepare(ctx, *dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}()

	cfg, err := database.ActiveConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *busPort != "" {
		link := *cfg.BusLink()
		link.Port = *busPort
		cfg.Bus = &link
	}

	log.Info().
		Str("db", database.Path()).
		Str("profile", cfg.Profile.Name).
		Str("timezone", cfg.Timezone()).
		Str("bus", cfg.BusLink().Port).
		Str("mode", cfg.BusLink().Mode).
		Int("devices", len(cfg.Devices)).
		Msg("Configuration loaded")

	svc, err := service.Start(ctx, database, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start bus service")
	}
	defer svc.Close()

	router := api.NewRouter(svc.Controller, svc.Events, schema.NewValidator(),
		api.WithAllowedOrigins(cfg.CORSOrigins()))
	srv := &http.Server{Addr: cfg.APIAddress(), Handler: router.Handler()}
	docs.SwaggerInfo.Host = srv.Addr

	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	log.Info().Str("address", srv.Addr).Msg("Starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Server failed")
	}
}
