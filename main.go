package main

import (
	"net/http"
	"os"
	"time"

	"url-safety-poc/safety"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg := safety.LoadConfig()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.APIKey == "" {
		log.Warn().Msg("GOOGLE_SAFE_BROWSING_KEY not set, /check requests must carry api_key")
	}

	checker := safety.NewCheckerFromConfig(cfg, log.Logger)
	handler := safety.NewHandler(checker, cfg.APIKey, log.Logger)

	mux := http.NewServeMux()
	handler.Routes(mux)

	log.Info().Str("port", cfg.Port).Msg("url-safety service listening")
	log.Info().Msg("   POST /check        - Classify urls and fetch WHOIS")
	log.Info().Msg("   POST /domain-info  - WHOIS for a single url")
	log.Info().Msg("   GET  /health       - Liveness")

	if err := http.ListenAndServe(":"+cfg.Port, mux); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
