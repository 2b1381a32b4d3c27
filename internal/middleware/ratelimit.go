package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"duxxan-platform/internal/response"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps token buckets per client IP and per authenticated wallet.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	log      *zap.Logger
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int, log *zap.Logger) *RateLimiter {
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(rps),
		burst:    burst,
		log:      log,
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Handler rejects clients over their per-IP budget with 429. It runs before
// authentication, so it never trusts request headers for the key.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.allow(c, "ip:"+c.ClientIP()) {
			c.Next()
		}
	}
}

// PerWallet limits the wallet resolved by WalletAuth. Requests without one pass.
func (rl *RateLimiter) PerWallet() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok || rl.allow(c, "wallet:"+user.WalletAddress) {
			c.Next()
		}
	}
}

func (rl *RateLimiter) allow(c *gin.Context, key string) bool {
	if rl.limiter(key).AllowN(rl.now(), 1) {
		return true
	}

	rl.log.Warn("rate limit exceeded",
		zap.String("key", key),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	retry := 1
	if rl.rate > 0 {
		retry = int(1/float64(rl.rate)) + 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))
	response.Abort(c, http.StatusTooManyRequests, "Too many requests")
	return false
}

// Cleanup drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until stop is closed.
func (rl *RateLimiter) StartCleanup(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup(interval)
			case <-stop:
				return
			}
		}
	}()
}
