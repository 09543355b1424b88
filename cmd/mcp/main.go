package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/device/schema"
	wallpadmcp "github.com/urmzd/wallpad/pkg/mcp"
	"github.com/urmzd/wallpad/pkg/service"
)

func main() {
	// stdout is the MCP transport
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dbPath := flag.String("db", "", "Path to database file (default: ~/.config/wallpad/wallpad.db)")
	flag.Parse()

	ctx := context.Background()

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
	log.Info().
		Str("db", database.Path()).
		Str("profile", cfg.Profile.Name).
		Str("bus", cfg.BusLink().Port).
		Msg("Configuration loaded")

	svc, err := service.Start(ctx, database, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start bus service")
	}
	defer svc.Close()

	log.Info().Msg("Starting MCP server on stdio")
	if err := wallpadmcp.NewServer(svc.Controller, schema.NewValidator()).ServeStdio(); err != nil {
		log.Error().Err(err).Msg("MCP server failed")
	}
}
