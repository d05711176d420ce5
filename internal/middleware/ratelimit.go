package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/care-scheduler/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// Idle limiters are evicted after this long.
	TTL time.Duration
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	limiters *cache.Cache
	config   RateLimiterConfig
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.TTL <= 0 {
		config.TTL = 10 * time.Minute
	}
	return &RateLimiter{
		limiters: cache.New(config.TTL, 2*config.TTL),
		config:   config,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		rl.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(rl.config.Rate, rl.config.Burst)
	// Add fails if another request created the limiter first
	if err := rl.limiters.Add(key, l, cache.DefaultExpiration); err != nil {
		if existing, ok := rl.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.limiter(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.Response{
				Success: false,
				Error: &httputil.Error{
					Code:    http.StatusTooManyRequests,
					Kind:    "RATE_LIMITED",
					Message: "rate limit exceeded",
				},
			})
			return
		}
		c.Next()
	}
}
