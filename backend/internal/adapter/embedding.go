package adapter

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingClient maps text to a fixed-dimension vector via POST {baseURL}/embed
type EmbeddingClient struct {
	baseURL    string
	dimensions int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEmbeddingClient creates an embedding client. dimensions <= 0 disables the
// length check on returned vectors.
func NewEmbeddingClient(baseURL string, dimensions int, timeout time.Duration) *EmbeddingClient {
	return &EmbeddingClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dimensions: dimensions,
		httpClient: newHTTPClient(timeout),
		logger:     logger.Get(),
	}
}

// Dimensions returns the expected vector length
func (c *EmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed returns the embedding for text
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewEmbeddingFailure(fmt.Errorf("text cannot be empty"))
	}

	var resp embedResponse
	if err := postJSON(ctx, c.httpClient, c.baseURL+"/embed", nil, textRequest{Text: text}, &resp); err != nil {
		c.logger.Warn("Embedding request failed", zap.Error(err))
		return nil, apperrors.NewEmbeddingFailure(err)
	}

	if len(resp.Embedding) == 0 {
		return nil, apperrors.NewEmbeddingFailure(fmt.Errorf("empty embedding"))
	}
	if c.dimensions > 0 && len(resp.Embedding) != c.dimensions {
		return nil, apperrors.NewEmbeddingFailure(
			fmt.Errorf("embedding has %d dimensions, expected %d", len(resp.Embedding), c.dimensions))
	}

	return resp.Embedding, nil
}
