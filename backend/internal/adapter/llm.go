package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

// LLMAdapter talks to the hosted model through an OpenAI-compatible endpoint
type LLMAdapter struct {
	client *openai.Client
	model  string
	mu     sync.RWMutex // Protects model field for concurrent access
	logger *zap.Logger
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// NewLLMAdapter creates a new LLM adapter. baseURL must include the API version
// path (e.g. http://localhost:4000/v1).
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// LiteLLM style proxies accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &LLMAdapter{
		client: openai.NewClientWithConfig(config),
		model:  modelID,
		logger: logger.Get(),
	}
}

// Complete sends the prompt as a single user turn and returns the raw text of the
// first choice. It makes exactly one request; callers own retry policy.
func (a *LLMAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	currentModel := a.GetModel()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.String("model", currentModel),
			zap.Duration("elapsed", time.Since(start)),
		)
		return "", apperrors.NewModelUnavailable(currentModel, err)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.NewModelUnavailable(currentModel, apperrors.ErrModelNoResponse)
	}

	content := resp.Choices[0].Message.Content

	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("content_length", len(content)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return content, nil
}
