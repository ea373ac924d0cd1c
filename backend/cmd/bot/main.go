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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"discord-agent/backend/internal/adapter"
	"discord-agent/backend/internal/agent"
	"discord-agent/backend/internal/discord"
	"discord-agent/backend/internal/graph"
	"discord-agent/backend/internal/memory"
	"discord-agent/backend/internal/session"
	"discord-agent/backend/internal/store"
	"discord-agent/backend/pkg/config"
	"discord-agent/backend/pkg/logger"
)

// botIntents are the gateway intents the agent needs to read guild messages
const botIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent | discordgo.IntentsGuildMembers

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
	log.Info("Starting Discord agent...")

	if cfg.DiscordBotToken == "" {
		log.Fatal("DISCORD_BOT_TOKEN is required")
	}

	ctx := context.Background()

	// Vector index
	driver, err := graph.NewDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())
	vectors := graph.NewRepository(driver, cfg.Neo4jDatabase, cfg.VectorDimensions)

	// Metadata store
	metadata, err := store.Open(ctx, cfg.MetadataDriver, cfg.MetadataDSN)
	if err != nil {
		log.Fatal("Failed to open metadata store", zap.Error(err))
	}
	defer metadata.Close()

	// Memory manager
	embedder := adapter.NewEmbeddingClient(cfg.LocalLLMURL, cfg.VectorDimensions, cfg.EmbedTimeout)
	memories := memory.NewManager(vectors, metadata, embedder, cfg.VectorDimensions, cfg.StoreTimeout)
	if err := memories.Bootstrap(ctx); err != nil {
		// Retried lazily on the first memory operation
		log.Warn("Vector index bootstrap failed", zap.Error(err))
	}

	reconciler := memory.NewReconciler(memories)
	scheduler, err := reconciler.Schedule(cfg.ReconcileSchedule, 10*time.Minute)
	if err != nil {
		log.Fatal("Invalid reconcile schedule", zap.String("schedule", cfg.ReconcileSchedule), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}
	dg.Identify.Intents = botIntents

	// Orchestrator
	orch, err := agent.NewOrchestrator(agent.Dependencies{
		Model:    adapter.NewLLMAdapter(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelID),
		Analyzer: adapter.NewAnalysisClient(cfg.LocalLLMURL, cfg.AnalysisTimeout),
		Personas: metadata,
		Memories: memories,
		Executor: adapter.NewExecutionClient(cfg.ExecutionURL, cfg.ExecutionSecret, cfg.ExecuteTimeout),
	}, orchestratorOptions(cfg))
	if err != nil {
		log.Fatal("Failed to create orchestrator", zap.Error(err))
	}
	orch.SetFallbackNotifier(discord.NewFallbackNotifier(dg))
	orch.SetSessionTracker(session.NewTracker(0, cfg.HistoryWindow))

	messageHandler := discord.NewHandler(orch)
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		messageHandler.HandleMessage(s, m)
	})
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Info("Discord session ready",
			zap.String("user", r.User.Username),
			zap.Int("guilds", len(r.Guilds)),
		)
	})

	// Optional metrics endpoint
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = startMetricsServer(cfg.MetricsAddr, log)
	}

	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}

	log.Info("Discord agent is running. Press CTRL-C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Discord agent...")

	// Stop new events first, then drain in-flight dispatches
	if err := dg.Close(); err != nil {
		log.Warn("Failed to close Discord session", zap.Error(err))
	}
	orch.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	log.Info("Discord agent exited")
}

func orchestratorOptions(cfg *config.Config) agent.Options {
	return agent.Options{
		TopK:            cfg.MemoryTopK,
		CacheSize:       cfg.ResponseCacheSize,
		CommandPrefixes: cfg.CommandPrefixes,
		AnalysisTimeout: cfg.AnalysisTimeout,
		ModelTimeout:    cfg.ModelTimeout,
		ExecuteTimeout:  cfg.ExecuteTimeout,
		ProcessTimeout:  cfg.ProcessTimeout,
	}
}

func startMetricsServer(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", zap.Error(err))
		}
	}()

	log.Info("Metrics server started", zap.String("addr", addr))
	return srv
}
