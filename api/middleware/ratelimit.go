package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/persistcheck/config"
	"github.com/use-agent/persistcheck/models"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL     = time.Hour
	limiterSweepPeriod = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiters holds one token bucket per caller identity.
type Limiters struct {
	cfg config.RateLimitConfig

	mu      sync.Mutex
	entries map[string]*limiterEntry

	done     chan struct{}
	stopOnce sync.Once
}

// NewLimiters creates the limiter set and starts sweeping idle entries.
func NewLimiters(cfg config.RateLimitConfig) *Limiters {
	l := &Limiters{
		cfg:     cfg,
		entries: make(map[string]*limiterEntry),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Stop ends the sweeper. Safe to call more than once.
func (l *Limiters) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

func (l *Limiters) get(identity string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[identity]
	if !ok {
		e = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst),
		}
		l.entries[identity] = e
	}
	e.lastSeen = time.Now()
	return e.limiter
}

func (l *Limiters) sweepLoop() {
	ticker := time.NewTicker(limiterSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.sweep(time.Now().Add(-limiterIdleTTL))
		}
	}
}

func (l *Limiters) sweep(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}

// Middleware limits each API key, or client IP when no key was
// authenticated, to the configured rate.
func (l *Limiters) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := c.GetString(ContextKeyAPIKey)
		if identity == "" {
			identity = c.ClientIP()
		}

		res := l.get(identity).Reserve()
		if delay := res.Delay(); !res.OK() || delay > 0 {
			res.Cancel()
			if res.OK() {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}

		c.Next()
	}
}
