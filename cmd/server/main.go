package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jag2430/fix-executor/internal/api"
	"github.com/jag2430/fix-executor/internal/audit"
	"github.com/jag2430/fix-executor/internal/auth"
	"github.com/jag2430/fix-executor/internal/config"
	"github.com/jag2430/fix-executor/internal/database"
	"github.com/jag2430/fix-executor/internal/execution"
	"github.com/jag2430/fix-executor/internal/marketdata"
	"github.com/jag2430/fix-executor/internal/metrics"
	"github.com/jag2430/fix-executor/internal/orderbook"
	"github.com/jag2430/fix-executor/internal/session"
	"github.com/jag2430/fix-executor/pkg/middleware"
)

// init configures logging: pretty printing outside production, debug level
// via the DEBUG environment variable.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			zlog.Fatal().Str("port", port).Msg("Invalid PORT environment variable")
		}
		cfg.Server.Port = p
	}
	engineCfg, err := cfg.Execution.ToEngineConfig()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid execution configuration")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}
	journal := audit.NewStore(db)

	// Sessions: a log sink stands in for the wire protocol engine until a
	// real counterparty connects and registers its own.
	sessions := session.NewRegistry(zlog.Logger)
	sessions.Register(session.Info{
		Key:          "default",
		SenderCompID: "EXEC",
		TargetCompID: "CLIENT",
	}, session.NewLogSink(zlog.Logger))

	source := marketdata.NewFinnhubSource(cfg.MarketData.BaseURL, cfg.MarketData.APIKey, zlog.Logger)
	market := marketdata.NewService(
		source,
		time.Duration(cfg.MarketData.CacheTTLSeconds)*time.Second,
		decimal.NewFromFloat(cfg.MarketData.DefaultPrice),
		zlog.Logger,
	)

	book := orderbook.NewBook()
	sink := audit.NewSink(sessions, journal, zlog.Logger)
	engine := execution.NewEngine(book, market, sink, engineCfg, zlog.Logger)
	defer engine.Close()

	authService := auth.NewService(cfg.Auth.JWTSecret)
	authService.RegisterCredentials(cfg.Auth.APIKey, cfg.Auth.APISecret)

	handlers := api.NewHandlers(engine, book, market, sessions, journal, zlog.Logger)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.RateLimit())

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authService.TokenHandler())
		v1.GET("/health", handlers.Health)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		handlers.RegisterRoutes(protected)
	}
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Hot-reload the execution policy when the config file changes.
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if *configPath != "" {
		go func() {
			err := config.Watch(watchCtx, *configPath, zlog.Logger, func(next config.AppConfig) {
				engineCfg, err := next.Execution.ToEngineConfig()
				if err != nil {
					zlog.Error().Err(err).Msg("Ignoring invalid execution config from reload")
					return
				}
				if err := engine.UpdateConfig(engineCfg); err != nil {
					zlog.Error().Err(err).Msg("Failed to apply reloaded execution config")
				}
			})
			if err != nil && err != context.Canceled {
				zlog.Error().Err(err).Msg("Config watcher stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		zlog.Info().Int("port", cfg.Server.Port).Str("mode", string(engineCfg.FillMode)).Msg("Simulator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}
