package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumen/backend/go-services/pkg/metrics"
	"golang.org/x/time/rate"
)

// rateKey prefers the authenticated subject so callers behind one NAT do not
// share a bucket; anonymous requests are keyed by client IP.
func rateKey(c *gin.Context) string {
	if sub, ok := Claims(c)["sub"].(string); ok && sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// MemoryLimiter keeps one token bucket per key in process memory.
type MemoryLimiter struct {
	rps      float64
	burst    int
	limiters sync.Map // map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{rps: rps, burst: burst}
}

func (m *MemoryLimiter) get(key string) *rate.Limiter {
	if v, ok := m.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}
	v, _ := m.limiters.LoadOrStore(key, rate.NewLimiter(rate.Limit(m.rps), m.burst))
	return v.(*rate.Limiter)
}

// Handler rejects with 429 once a key's bucket is empty.
func (m *MemoryLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.get(rateKey(c)).Allow() {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues("memory").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues("memory").Inc()
		c.Next()
	}
}

// RateLimitMiddleware is a per-key token bucket: rps events per second with
// bursts up to burst.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	return NewMemoryLimiter(rps, burst).Handler()
}
