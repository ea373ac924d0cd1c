package execution

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter keeps one token bucket per client IP. A full bucket holds `limit`
// requests and refills over `window`.
type ipLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &ipLimiter{
		every: rate.Every(window / time.Duration(limit)),
		burst: limit,
	}
}

func (l *ipLimiter) get(ip string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := l.limiters.LoadOrStore(ip, rate.NewLimiter(l.every, l.burst))
	return limiter.(*rate.Limiter)
}

func (l *ipLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			requestsRejected.WithLabelValues("rate_limited").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please try again later."})
			return
		}
		c.Next()
	}
}
