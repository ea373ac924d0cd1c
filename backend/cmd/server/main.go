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

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"discord-agent/backend/internal/execution"
	"discord-agent/backend/internal/store"
	"discord-agent/backend/pkg/config"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env, cfg.LogLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting execution service...")

	if err := validateServerConfig(cfg); err != nil {
		log.Fatal("Invalid execution service configuration", zap.Error(err))
	}

	ctx := context.Background()

	metadata, err := store.Open(ctx, cfg.MetadataDriver, cfg.MetadataDSN)
	if err != nil {
		log.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer metadata.Close()

	// The execution service holds its own gateway session for side effects
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	defer dg.Close()

	server := execution.NewServer(metadata, execution.NewRunner(dg), execution.Options{
		Secret:             cfg.ExecutionSecret,
		RateLimitPerWindow: cfg.RateLimitPerWindow,
		RateLimitWindow:    cfg.RateLimitWindow,
		Production:         cfg.IsProduction(),
	})
	server.SetReadyCheck(func() bool { return dg.DataReady })

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// validateServerConfig checks the settings only this binary needs
func validateServerConfig(cfg *config.Config) error {
	if cfg.DiscordBotToken == "" {
		return apperrors.NewConfigMissingRequired("DISCORD_BOT_TOKEN")
	}
	if cfg.ExecutionSecret == "" {
		return apperrors.NewConfigMissingRequired("EXECUTION_SECRET")
	}
	return nil
}
