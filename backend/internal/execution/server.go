package execution

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

// ErrNotAllowed is the per-task error for types missing from the guild's allow-list
const ErrNotAllowed = "Command not allowed in this server."

// ConfigStore is what the execution service needs from the metadata store
type ConfigStore interface {
	GetServerConfig(ctx context.Context, guildID string) (*state.ServerConfig, error)
	InsertAudit(ctx context.Context, entry state.AuditEntry) (state.AuditEntry, error)
}

// TaskRunner performs one allowed task
type TaskRunner interface {
	Run(guildID string, task state.Task) error
}

// Options configure the execution service
type Options struct {
	Secret             string
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	Production         bool
}

// Server is the privileged side of task execution: it checks the caller's token
// and the guild's allow-list before any side effect.
type Server struct {
	store   ConfigStore
	runner  TaskRunner
	opts    Options
	limiter *ipLimiter
	ready   func() bool
	logger  *zap.Logger
}

// NewServer creates the execution service
func NewServer(store ConfigStore, runner TaskRunner, opts Options) *Server {
	return &Server{
		store:   store,
		runner:  runner,
		opts:    opts,
		limiter: newIPLimiter(opts.RateLimitPerWindow, opts.RateLimitWindow),
		ready:   func() bool { return true },
		logger:  logger.Named("execution"),
	}
}

// SetReadyCheck sets the probe reported by /health
func (s *Server) SetReadyCheck(ready func() bool) {
	if ready != nil {
		s.ready = ready
	}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	if s.opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(s.limiter.middleware())

	// Public
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "discord": s.ready()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(s.authMiddleware())
	{
		api.POST("/execute", s.handleExecute)
		api.POST("/audit/log", s.handleAudit)
	}

	return router
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			requestsRejected.WithLabelValues("missing_auth").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is missing"})
			return
		}

		token := ""
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 {
			token = strings.TrimSpace(parts[1])
		}
		if s.opts.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.Secret)) != 1 {
			requestsRejected.WithLabelValues("invalid_token").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid authentication token"})
			return
		}

		c.Next()
	}
}

func (s *Server) handleExecute(c *gin.Context) {
	var req state.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	cfg, err := s.store.GetServerConfig(c.Request.Context(), req.GuildID)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypeExecution) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Guild not configured."})
			return
		}
		s.logger.Error("Failed to load server config", zap.String("guild_id", req.GuildID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load server config"})
		return
	}

	results := make([]state.TaskResult, 0, len(req.Tasks))
	for _, task := range req.Tasks {
		results = append(results, s.runTask(req.GuildID, *cfg, task))
	}

	c.JSON(http.StatusOK, state.ExecuteResponse{Results: results})
}

// runTask checks the allow-list, then runs the task. Only allowed types reach the runner.
func (s *Server) runTask(guildID string, cfg state.ServerConfig, task state.Task) state.TaskResult {
	if !cfg.Allows(task.Type) {
		tasksExecuted.WithLabelValues(task.Type, "not_allowed").Inc()
		s.logger.Warn("Rejected task not on allow-list",
			zap.String("guild_id", guildID),
			zap.String("task_type", task.Type),
		)
		return state.TaskResult{Task: task, Success: false, Error: ErrNotAllowed}
	}

	if err := s.runner.Run(guildID, task); err != nil {
		result := "failed"
		if errors.Is(err, ErrUnknownTaskType) {
			result = "unknown"
		} else {
			s.logger.Error("Failed to execute task",
				zap.String("guild_id", guildID),
				zap.String("task_type", task.Type),
				zap.String("target", task.Target),
				zap.Error(err),
			)
		}
		tasksExecuted.WithLabelValues(task.Type, result).Inc()
		return state.TaskResult{Task: task, Success: false, Error: err.Error()}
	}

	tasksExecuted.WithLabelValues(task.Type, "ok").Inc()
	return state.TaskResult{Task: task, Success: true}
}

func (s *Server) handleAudit(c *gin.Context) {
	var entry state.AuditEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	saved, err := s.store.InsertAudit(c.Request.Context(), entry)
	if err != nil {
		s.logger.Error("Failed to write to audit log", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not write to audit log."})
		return
	}

	c.JSON(http.StatusCreated, saved)
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
