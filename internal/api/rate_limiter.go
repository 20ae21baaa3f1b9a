package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"Exam-Prep-Assessment-Backend/internal/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter enforces a minimum interval between requests and a daily quota,
// both per client IP. The policy can be swapped at runtime with Update.
type RateLimiter struct {
	mu      sync.Mutex
	policy  config.RateLimitConfig
	clients map[string]*budget
	swept   string
	now     func() time.Time
}

type budget struct {
	limiter *rate.Limiter
	day     string
	used    int
}

func NewRateLimiter(policy config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		policy:  policy,
		clients: make(map[string]*budget),
		now:     time.Now,
	}
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// Update applies a new policy to every known client.
func (l *RateLimiter) Update(policy config.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.policy = policy
	now := l.now()
	for _, b := range l.clients {
		b.limiter.SetLimitAt(now, limitFor(policy.MinInterval))
	}
}

// Allow records a request from client. When it is refused, the returned error
// says which limit was hit and retryAfter is the suggested wait.
func (l *RateLimiter) Allow(client string) (retryAfter time.Duration, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	today := now.Format(time.DateOnly)
	if l.swept != today {
		l.sweep(now, today)
	}
	b, ok := l.clients[client]
	if !ok {
		b = &budget{limiter: rate.NewLimiter(limitFor(l.policy.MinInterval), 1), day: today}
		l.clients[client] = b
	}
	if b.day != today {
		b.day, b.used = today, 0
	}

	if l.policy.DailyQuota > 0 && b.used >= l.policy.DailyQuota {
		y, m, d := now.Date()
		midnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
		return midnight.Sub(now), fmt.Errorf("daily limit of %d requests reached", l.policy.DailyQuota)
	}
	if l.policy.MinInterval > 0 {
		if tokens := b.limiter.TokensAt(now); tokens < 1 {
			delay := time.Duration((1 - tokens) / float64(b.limiter.Limit()) * float64(time.Second))
			return delay, fmt.Errorf("please wait %s between requests", l.policy.MinInterval)
		}
		b.limiter.AllowN(now, 1)
	}
	b.used++
	return 0, nil
}

// sweep drops budgets left over from earlier days once their spacing window
// has passed. Runs at most once per day, under l.mu.
func (l *RateLimiter) sweep(now time.Time, today string) {
	for ip, b := range l.clients {
		if b.day == today {
			continue
		}
		if l.policy.MinInterval > 0 && b.limiter.TokensAt(now) < 1 {
			continue
		}
		delete(l.clients, ip)
	}
	l.swept = today
}

func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		wait, err := l.Allow(c.ClientIP())
		if err != nil {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "too many requests, try again later",
				"details": err.Error(),
			})
			return
		}
		c.Next()
	}
}
