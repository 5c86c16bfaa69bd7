package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"catalogsync/pkg/config"
	apperrors "catalogsync/pkg/errors"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// limiterPool hands out one token bucket per client. Buckets idle for
// limiterIdleTTL are evicted.
type limiterPool struct {
	mu      sync.Mutex
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
}

func newLimiterPool(limit rate.Limit, burst int) *limiterPool {
	return &limiterPool{
		buckets: gocache.New(limiterIdleTTL, limiterIdleTTL),
		limit:   limit,
		burst:   burst,
	}
}

func (p *limiterPool) allow(client string) bool {
	p.mu.Lock()
	var lim *rate.Limiter
	if v, ok := p.buckets.Get(client); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(p.limit, p.burst)
	}
	// Re-set on every hit to slide the idle expiry.
	p.buckets.SetDefault(client, lim)
	p.mu.Unlock()
	return lim.Allow()
}

// clientIP prefers the first X-Forwarded-For hop, then the remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware limits the status surface per client IP.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	rl := cfg.Status.RateLimit
	if !rl.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	pool := newLimiterPool(rate.Limit(rl.RequestsPerSecond), rl.Burst)

	var inflight chan struct{}
	if rl.MaxConcurrent > 0 {
		inflight = make(chan struct{}, rl.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inflight != nil {
			select {
			case inflight <- struct{}{}:
				defer func() { <-inflight }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":   string(apperrors.ErrCodeServiceUnavailable),
					"message": "too many concurrent requests",
				})
				return
			}
		}

		if !pool.allow(clientIP(c.Request)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   string(apperrors.ErrCodeRateLimit),
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}


