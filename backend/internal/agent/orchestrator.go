package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"discord-agent/backend/internal/cache"
	"discord-agent/backend/internal/constants"
	"discord-agent/backend/internal/session"
	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

// ModelClient makes one call to the hosted model
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Analyzer computes the local signal for a message
type Analyzer interface {
	Analyze(ctx context.Context, text string) (state.LocalAnalysis, error)
}

// PersonaStore looks up a guild's persona and configuration
type PersonaStore interface {
	GetGuildProfile(ctx context.Context, guildID string) (*state.GuildProfile, error)
}

// Memories is the subset of the memory manager the pipeline uses
type Memories interface {
	Retrieve(ctx context.Context, text, guildID string, topK int) ([]state.ScoredMemory, error)
	Upsert(ctx context.Context, rec state.MemoryRecord) (string, error)
	Get(ctx context.Context, id string) (*state.MemoryRecord, error)
	Delete(ctx context.Context, id string) error
	Tag(ctx context.Context, id string, tags []string) ([]string, error)
}

// TaskExecutor forwards tasks to the execution service
type TaskExecutor interface {
	Execute(ctx context.Context, guildID string, tasks []state.Task) ([]state.TaskResult, error)
}

// FallbackNotifier posts the "having trouble" message when the model is unreachable
type FallbackNotifier interface {
	NotifyFallback(ctx context.Context, msg state.IncomingMessage, text string) error
}

// Dependencies are the orchestrator's collaborators
type Dependencies struct {
	Model    ModelClient
	Analyzer Analyzer
	Personas PersonaStore
	Memories Memories
	Executor TaskExecutor
}

// Options tune the pipeline; zero values take the defaults
type Options struct {
	TopK            int
	CacheSize       int
	CommandPrefixes string
	AnalysisTimeout time.Duration
	ModelTimeout    time.Duration
	ExecuteTimeout  time.Duration
	ProcessTimeout  time.Duration
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = constants.DefaultMemoryTopK
	}
	if o.CacheSize <= 0 {
		o.CacheSize = constants.DefaultResponseCacheSize
	}
	if o.CommandPrefixes == "" {
		o.CommandPrefixes = constants.DefaultCommandPrefixes
	}
	if o.AnalysisTimeout <= 0 {
		o.AnalysisTimeout = 3 * time.Second
	}
	if o.ModelTimeout <= 0 {
		o.ModelTimeout = 30 * time.Second
	}
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = 10 * time.Second
	}
	if o.ProcessTimeout <= 0 {
		o.ProcessTimeout = 60 * time.Second
	}
}

// Orchestrator runs the per-message pipeline: dedupe, triage, enrichment, one model
// call, validation, dispatch and memory mutation.
type Orchestrator struct {
	deps      Dependencies
	opts      Options
	cache     *cache.ResponseCache
	validator *ResponseValidator
	sessions  *session.Tracker
	notifier  FallbackNotifier
	inflight  sync.WaitGroup
	logger    *zap.Logger
}

// NewOrchestrator creates a new agent orchestrator
func NewOrchestrator(deps Dependencies, opts Options) (*Orchestrator, error) {
	if deps.Model == nil || deps.Analyzer == nil || deps.Personas == nil || deps.Memories == nil || deps.Executor == nil {
		return nil, errors.New("orchestrator: all dependencies are required")
	}
	opts.applyDefaults()

	responses, err := cache.New(opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		deps:      deps,
		opts:      opts,
		cache:     responses,
		validator: NewResponseValidator(),
		sessions:  session.NewTracker(constants.SessionTimeout, constants.DefaultHistoryWindow),
		logger:    logger.Named("orchestrator"),
	}, nil
}

// SetFallbackNotifier sets the notifier used when the model call fails
func (o *Orchestrator) SetFallbackNotifier(n FallbackNotifier) {
	o.notifier = n
}

// SetSessionTracker replaces the default participant/history tracker
func (o *Orchestrator) SetSessionTracker(t *session.Tracker) {
	if t != nil {
		o.sessions = t
	}
}

// Wait blocks until every dispatched task batch has finished
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// Process handles one inbound message. It never returns an error and never panics;
// every failure is logged. Concurrent calls for the same (channel, message) share a
// single model invocation and each replays the shared response.
func (o *Orchestrator) Process(ctx context.Context, msg state.IncomingMessage) {
	start := time.Now()
	log := o.logger.With(
		zap.String("guild_id", msg.Guild.ID),
		zap.String("channel_id", msg.Channel.ID),
		zap.String("message_id", msg.ID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Recovered from panic while processing message", zap.Any("panic", r))
			messagesProcessed.WithLabelValues("panic").Inc()
		}
	}()

	if strings.TrimSpace(msg.Content) == "" {
		messagesProcessed.WithLabelValues("empty").Inc()
		return
	}

	// Commands are never cached, so checking them before the cache is equivalent
	if o.isCommand(msg.Content) {
		log.Debug("Message triaged as command", zap.String("content", msg.Content))
		messagesProcessed.WithLabelValues("command").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.ProcessTimeout)
	defer cancel()

	key := cache.Key(msg.Channel.ID, msg.ID)
	resp, outcome, err := o.cache.GetOrCompute(ctx, key, func(fctx context.Context) (state.AgentResponse, error) {
		return o.compute(fctx, msg, log)
	})
	if err != nil {
		messagesProcessed.WithLabelValues(outcomeFor(err)).Inc()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			log.Warn("Message processing aborted", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		}
		return
	}
	cacheLookups.WithLabelValues(outcome.String()).Inc()
	if outcome != cache.OutcomeComputed {
		log.Info("Replaying cached response", zap.String("cache", outcome.String()))
	}

	o.handleResponse(ctx, msg, resp, log)

	messagesProcessed.WithLabelValues(pick(resp.ShouldRespond, "responded", "silent")).Inc()
	log.Debug("Message processed", zap.Duration("elapsed", time.Since(start)))
}

// compute runs enrichment, the model call and validation for a cache miss
func (o *Orchestrator) compute(ctx context.Context, msg state.IncomingMessage, log *zap.Logger) (state.AgentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.ProcessTimeout)
	defer cancel()

	snapshot := o.sessions.Track(msg)

	var (
		analysis state.LocalAnalysis
		profile  *state.GuildProfile
		memories []state.ScoredMemory
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, o.opts.AnalysisTimeout)
		defer cancel()
		a, err := o.deps.Analyzer.Analyze(actx, msg.Content)
		if err != nil {
			log.Warn("Local analysis unavailable, using neutral default", zap.Error(err))
			a = state.NeutralAnalysis()
		}
		analysis = a
		return nil
	})
	g.Go(func() error {
		p, err := o.deps.Personas.GetGuildProfile(gctx, msg.Guild.ID)
		if err != nil {
			return err
		}
		profile = p
		return nil
	})
	g.Go(func() error {
		m, err := o.deps.Memories.Retrieve(gctx, msg.Content, msg.Guild.ID, o.opts.TopK)
		if err != nil {
			log.Warn("Memory retrieval failed, continuing without memories", zap.Error(err))
			return nil
		}
		memories = m
		return nil
	})

	if err := g.Wait(); err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrorTypePersona) {
			log.Warn("No persona configured for guild, skipping message")
		} else {
			log.Error("Persona lookup failed", zap.Error(err))
		}
		return state.AgentResponse{}, err
	}

	prompt := BuildPrompt(PromptInput{
		Persona:         profile.Persona,
		GuildName:       msg.Guild.Name,
		ChannelName:     msg.Channel.Name,
		AllowedCommands: profile.Config.AllowedCommandList(),
		Participants:    snapshot.Participants,
		History:         snapshot.History,
		Memories:        memories,
		Analysis:        analysis,
		Message:         msg,
	})

	mctx, mcancel := context.WithTimeout(ctx, o.opts.ModelTimeout)
	callStart := time.Now()
	raw, err := o.deps.Model.Complete(mctx, prompt)
	mcancel()
	modelLatency.Observe(time.Since(callStart).Seconds())
	if err != nil {
		modelCalls.WithLabelValues("error").Inc()
		log.Error("Model call failed", zap.Error(err))
		o.notifyFallback(msg, log)
		if !apperrors.IsErrorType(err, apperrors.ErrorTypeAgent) {
			err = apperrors.NewModelUnavailable("", err)
		}
		return state.AgentResponse{}, err
	}
	modelCalls.WithLabelValues("ok").Inc()

	resp, err := o.validator.Validate(raw)
	if err != nil {
		var schemaErr *apperrors.SchemaError
		if errors.As(err, &schemaErr) {
			validationFailures.WithLabelValues("schema").Inc()
			log.Warn("Model output failed schema validation", zap.Strings("violations", schemaErr.Violations))
		} else {
			validationFailures.WithLabelValues("parse").Inc()
			log.Warn("Model output is not JSON", zap.Int("raw_length", len(raw)), zap.Error(err))
		}
		return state.AgentResponse{}, err
	}

	return resp, nil
}

// handleResponse dispatches tasks and applies memory ops for a validated response
func (o *Orchestrator) handleResponse(ctx context.Context, msg state.IncomingMessage, resp state.AgentResponse, log *zap.Logger) {
	tasks := make([]state.Task, 0, len(resp.Tasks)+1)
	tasks = append(tasks, resp.Tasks...)
	if resp.ShouldRespond && resp.Response != nil && strings.TrimSpace(resp.Response.Text) != "" {
		tasks = append(tasks, state.Task{
			Type:   constants.TaskSendMessage,
			Target: msg.Channel.ID,
			Params: map[string]interface{}{"text": resp.Response.Text},
		})
	}

	if len(tasks) > 0 {
		o.dispatch(msg.Guild.ID, tasks, log)
	}

	for _, op := range resp.MemoryOps {
		if err := o.applyMemoryOp(ctx, msg, op); err != nil {
			memoryOpFailures.WithLabelValues(op.Op).Inc()
			log.Warn("Memory op failed", zap.String("op", op.Op), zap.String("key", op.Key), zap.Error(err))
		}
	}
}

// dispatch sends tasks without waiting: at most once, never retried, outcome only logged
func (o *Orchestrator) dispatch(guildID string, tasks []state.Task, log *zap.Logger) {
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				dispatchFailures.Inc()
				log.Error("Recovered from panic in task dispatch",
					zap.Int("tasks", len(tasks)),
					zap.Any("panic", r),
				)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.ExecuteTimeout)
		defer cancel()

		results, err := o.deps.Executor.Execute(ctx, guildID, tasks)
		if err != nil {
			dispatchFailures.Inc()
			log.Error("Task dispatch failed", zap.Int("tasks", len(tasks)), zap.Error(err))
			return
		}
		failed := 0
		for _, r := range results {
			if !r.Success {
				failed++
			}
		}
		log.Info("Tasks dispatched", zap.Int("tasks", len(tasks)), zap.Int("rejected", failed))
	}()
}

func (o *Orchestrator) notifyFallback(msg state.IncomingMessage, log *zap.Logger) {
	if o.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ExecuteTimeout)
	defer cancel()
	if err := o.notifier.NotifyFallback(ctx, msg, constants.FallbackMessage); err != nil {
		log.Warn("Failed to send fallback message", zap.Error(err))
	}
}

func (o *Orchestrator) isCommand(content string) bool {
	if content == "" {
		return false
	}
	return strings.ContainsRune(o.opts.CommandPrefixes, []rune(content)[0])
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "aborted"
	case apperrors.IsErrorType(err, apperrors.ErrorTypePersona):
		return "persona_missing"
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		return "invalid_output"
	case apperrors.IsErrorType(err, apperrors.ErrorTypeAgent):
		return "model_error"
	}
	return fmt.Sprintf("error_%s", apperrors.TypeOf(err))
}
