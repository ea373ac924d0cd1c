package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"discord-agent/backend/internal/state"
	apperrors "discord-agent/backend/pkg/errors"
	"discord-agent/backend/pkg/logger"
)

// ExecutionClient forwards validated tasks to the privileged execution service
type ExecutionClient struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewExecutionClient creates a client for POST {baseURL}/execute
func NewExecutionClient(baseURL, secret string, timeout time.Duration) *ExecutionClient {
	return &ExecutionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: newHTTPClient(timeout),
		logger:     logger.Get(),
	}
}

// Execute sends tasks for guildID. Unreachable service or a non-2xx answer is
// returned as ErrTaskDispatchFailed. It is never retried here.
func (c *ExecutionClient) Execute(ctx context.Context, guildID string, tasks []state.Task) ([]state.TaskResult, error) {
	headers := map[string]string{"Authorization": "Bearer " + c.secret}

	var resp state.ExecuteResponse
	err := postJSON(ctx, c.httpClient, c.baseURL+"/execute", headers, state.ExecuteRequest{GuildID: guildID, Tasks: tasks}, &resp)
	if err != nil {
		status := 0
		var se *statusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		return nil, apperrors.NewTaskDispatchFailed(guildID, status, err)
	}

	for _, r := range resp.Results {
		if !r.Success {
			c.logger.Warn("Task rejected by execution service",
				zap.String("guild_id", guildID),
				zap.String("task_type", r.Task.Type),
				zap.String("error", r.Error),
			)
		}
	}

	return resp.Results, nil
}
