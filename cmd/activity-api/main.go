// Activity API - Teams notification proxy
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/teams-notifier/activity-api/internal/activity"
	"github.com/teams-notifier/activity-api/internal/api"
	"github.com/teams-notifier/activity-api/internal/config"
	"github.com/teams-notifier/activity-api/internal/connector"
	"github.com/teams-notifier/activity-api/internal/metrics"
	"github.com/teams-notifier/activity-api/internal/msauth"
	"github.com/teams-notifier/activity-api/internal/store"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file (optional, env-only without it)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("activity-api %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		blog := bootstrapLogger()
		blog.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
	}

	logger := setupLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Starting activity-api")

	// Initialize storage
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	openCtx, openCancel := context.WithTimeout(ctx, 15*time.Second)
	st, err := store.NewPostgres(openCtx, store.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		Logger:       logger,
	})
	openCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer st.Close()

	// Initialize identity provider credentials
	authCfg := msauth.Config{
		AppID:    cfg.Teams.AppID,
		TenantID: cfg.Teams.TenantID,
		Password: cfg.Teams.AppPassword,
		Logger:   logger,
	}
	if cfg.Teams.AppCertificate != "" {
		if authCfg.Certificate, err = cfg.Teams.DecodeCertificate(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to decode certificate")
		}
		if authCfg.PrivateKey, err = cfg.Teams.DecodePrivateKey(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to decode private key")
		}
	}
	tokens, err := msauth.New(authCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize token provider")
	}

	// Initialize Connector client and activity manager
	conn := connector.New(tokens, connector.Config{Logger: logger})
	manager := activity.New(st, conn, logger)

	// Metrics
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	// Initialize API
	handler := api.NewHandler(manager, st, m, logger)
	router := api.NewRouter(handler, logger, api.RouterConfig{
		MetricsPath: metricsPath(cfg),
	})

	// Start HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
	}

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("activity-api stopped")
}

func metricsPath(cfg *config.Config) string {
	if !cfg.Metrics.Enabled {
		return ""
	}
	return cfg.Metrics.Path
}

// bootstrapLogger reports failures that happen before configuration loads.
func bootstrapLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
