package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

type textRequest struct {
	Text string `json:"text"`
}

// AnalysisClient calls the local sentiment/toxicity service
type AnalysisClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAnalysisClient creates a client for POST {baseURL}/analyze
func NewAnalysisClient(baseURL string, timeout time.Duration) *AnalysisClient {
	return &AnalysisClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: newHTTPClient(timeout),
		logger:     logger.Get(),
	}
}

// Analyze returns the local signal for text. Any failure, timeouts included, is
// reported as ErrLocalAnalysisUnavailable; substituting a default is the caller's call.
func (c *AnalysisClient) Analyze(ctx context.Context, text string) (state.LocalAnalysis, error) {
	if strings.TrimSpace(text) == "" {
		return state.LocalAnalysis{}, apperrors.NewLocalAnalysisUnavailable(fmt.Errorf("text cannot be empty"))
	}

	var result state.LocalAnalysis
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/analyze", nil, textRequest{Text: text}, &result); err != nil {
		c.logger.Warn("Local analysis request failed", zap.Error(err))
		return state.LocalAnalysis{}, apperrors.NewLocalAnalysisUnavailable(err)
	}

	return result, nil
}
