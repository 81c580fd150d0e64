package safety

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultEndpoint     = "https://safebrowsing.googleapis.com/v4/threatMatches:find"
	defaultHTTPTimeout  = 10 * time.Second
	defaultWhoisTimeout = 15 * time.Second
	defaultPort         = "8080"
	defaultLogLevel     = "info"
	envAPIKey           = "GOOGLE_SAFE_BROWSING_KEY"
	envEndpoint         = "SAFE_BROWSING_ENDPOINT"
	envHTTPTimeout      = "SAFE_BROWSING_TIMEOUT"
	envWhoisTimeout     = "WHOIS_TIMEOUT"
	envWhoisServer      = "WHOIS_SERVER"
	envPort             = "PORT"
	envLogLevel         = "LOG_LEVEL"
)

// Config holds process settings read from the environment.
type Config struct {
	Port         string
	APIKey       string
	Endpoint     string
	HTTPTimeout  time.Duration
	WhoisTimeout time.Duration
	WhoisServer  string
	LogLevel     string
}

// LoadConfig reads Config from environment variables. Call godotenv.Load
// first if a .env file should be honoured.
func LoadConfig() Config {
	return Config{
		Port:         getEnv(envPort, defaultPort),
		APIKey:       os.Getenv(envAPIKey),
		Endpoint:     getEnv(envEndpoint, defaultEndpoint),
		HTTPTimeout:  getEnvDuration(envHTTPTimeout, defaultHTTPTimeout),
		WhoisTimeout: getEnvDuration(envWhoisTimeout, defaultWhoisTimeout),
		WhoisServer:  os.Getenv(envWhoisServer),
		LogLevel:     getEnv(envLogLevel, defaultLogLevel),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Dur("default", fallback).Msg("invalid duration, using default")
		return fallback
	}
	return d
}
