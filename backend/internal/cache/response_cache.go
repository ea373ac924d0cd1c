package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"discord-agent/backend/internal/state"
	"discord-agent/backend/pkg/logger"
)

// Outcome describes how a GetOrCompute caller obtained its response
type Outcome int

const (
	// OutcomeComputed means this caller's flight ran compute
	OutcomeComputed Outcome = iota
	// OutcomeHit means the response was already cached
	OutcomeHit
	// OutcomeShared means the caller joined a flight started by another caller
	OutcomeShared
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComputed:
		return "computed"
	case OutcomeHit:
		return "hit"
	case OutcomeShared:
		return "shared"
	}
	return "unknown"
}

// ComputeFunc produces a validated response for a cache miss
type ComputeFunc func(ctx context.Context) (state.AgentResponse, error)

// ResponseCache is a bounded LRU of validated responses keyed by (channel, message)
// with a single-flight get-or-compute path. At most one compute runs per key at a time.
type ResponseCache struct {
	entries *lru.Cache[string, state.AgentResponse]
	flights singleflight.Group
	logger  *zap.Logger
}

type flightResult struct {
	response state.AgentResponse
	cached   bool
}

// New creates a response cache holding at most capacity entries
func New(capacity int) (*ResponseCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	entries, err := lru.New[string, state.AgentResponse](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &ResponseCache{
		entries: entries,
		logger:  logger.Get(),
	}, nil
}

// Key builds the dedupe key for a message
func Key(channelID, messageID string) string {
	return channelID + "-" + messageID
}

// Get returns a cached response
func (c *ResponseCache) Get(key string) (state.AgentResponse, bool) {
	return c.entries.Get(key)
}

// Len returns the number of cached responses
func (c *ResponseCache) Len() int {
	return c.entries.Len()
}

// GetOrCompute returns the cached response for key or runs compute once for all
// concurrent callers of the same key. Successful results are cached; errors are
// shared with the callers of that flight but not cached.
//
// compute runs detached from the caller's cancellation so one impatient caller does
// not fail the others; it must bound its own external calls. A caller whose ctx ends
// first returns ctx.Err() while the flight keeps running.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) (state.AgentResponse, Outcome, error) {
	if resp, ok := c.entries.Get(key); ok {
		return resp, OutcomeHit, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		// A flight for this key may have finished between our miss and now
		if resp, ok := c.entries.Get(key); ok {
			return flightResult{response: resp, cached: true}, nil
		}

		resp, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, resp)
		return flightResult{response: resp}, nil
	})

	select {
	case <-ctx.Done():
		return state.AgentResponse{}, OutcomeComputed, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return state.AgentResponse{}, OutcomeComputed, res.Err
		}
		fr := res.Val.(flightResult)
		switch {
		case fr.cached:
			return fr.response, OutcomeHit, nil
		case res.Shared:
			return fr.response, OutcomeShared, nil
		default:
			return fr.response, OutcomeComputed, nil
		}
	}
}
