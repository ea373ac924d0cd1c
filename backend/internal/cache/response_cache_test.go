package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"discord-agent/backend/internal/state"
)

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
}

func TestGetOrCompute_ConcurrentCallersShareOneCompute(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var calls int32
	compute := func(ctx context.Context) (state.AgentResponse, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(50 * time.Millisecond)
		return state.AgentResponse{ShouldRespond: true, Response: &state.ReplyContent{Text: "hello"}}, nil
	}

	const n = 16
	start := make(chan struct{})
	results := make([]state.AgentResponse, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, _, err := c.GetOrCompute(context.Background(), Key("c1", "m1"), compute)
			assert.NoError(t, err)
			results[i] = resp
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		require.NotNil(t, r.Response)
		assert.Equal(t, "hello", r.Response.Text)
	}
}

func TestGetOrCompute_HitAfterCompute(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	compute := func(ctx context.Context) (state.AgentResponse, error) {
		return state.AgentResponse{ShouldRespond: false}, nil
	}

	_, outcome, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeComputed, outcome)

	_, outcome, err = c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
}

func TestGetOrCompute_ErrorsAreNotCached(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	var calls int32
	compute := func(ctx context.Context) (state.AgentResponse, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return state.AgentResponse{}, errors.New("model down")
		}
		return state.AgentResponse{ShouldRespond: true}, nil
	}

	_, _, err = c.GetOrCompute(context.Background(), "k", compute)
	require.Error(t, err)
	_, ok := c.Get("k")
	assert.False(t, ok)

	resp, _, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.True(t, resp.ShouldRespond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetOrCompute_CallerCancellation(t *testing.T) {
	c, err := New(10)
	require.NoError(t, err)

	release := make(chan struct{})
	compute := func(ctx context.Context) (state.AgentResponse, error) {
		<-release
		return state.AgentResponse{ShouldRespond: true}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = c.GetOrCompute(ctx, "k", compute)
	assert.ErrorIs(t, err, context.Canceled)

	// The flight keeps running and still populates the cache
	close(release)
	require.Eventually(t, func() bool {
		_, ok := c.Get("k")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "c1-m1", Key("c1", "m1"))
	assert.NotEqual(t, Key("c1", "m1"), Key("c2", "m1"))
}

func TestResponseCache_CapacityBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		keys := rapid.SliceOf(rapid.IntRange(0, 50)).Draw(t, "keys")

		c, err := New(capacity)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		for _, k := range keys {
			key := fmt.Sprintf("k%d", k)
			_, _, err := c.GetOrCompute(context.Background(), key, func(ctx context.Context) (state.AgentResponse, error) {
				return state.AgentResponse{}, nil
			})
			if err != nil {
				t.Fatalf("GetOrCompute: %v", err)
			}
			if c.Len() > capacity {
				t.Fatalf("cache holds %d entries, capacity %d", c.Len(), capacity)
			}
		}
		if len(keys) > 0 {
			last := fmt.Sprintf("k%d", keys[len(keys)-1])
			if _, ok := c.Get(last); !ok {
				t.Fatalf("most recently used key %s was evicted", last)
			}
		}
	})
}
