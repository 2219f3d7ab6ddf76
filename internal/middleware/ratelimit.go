package middleware

import (
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/bazaardial/internal/apperr"
)

// IPRateLimiter is a token bucket per client IP.
type IPRateLimiter struct {
	visitors sync.Map
	every    rate.Limit
	burst    int
	idle     time.Duration
	log      *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewIPRateLimiter allows burst requests per window per IP, refilling evenly
// across the window.
func NewIPRateLimiter(burst int, window time.Duration, log *zap.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		every: rate.Every(window / time.Duration(burst)),
		burst: burst,
		idle:  window,
		log:   log,
	}
}

func (l *IPRateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	v, _ := l.visitors.LoadOrStore(ip, &visitor{limiter: rate.NewLimiter(l.every, l.burst)})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = now
	vi.mu.Unlock()
	return vi.limiter
}

// Sweep drops visitors idle longer than one window.
func (l *IPRateLimiter) Sweep(now time.Time) {
	cutoff := now.Add(-l.idle)
	l.visitors.Range(func(k, v interface{}) bool {
		vi := v.(*visitor)
		vi.mu.Lock()
		stale := vi.lastSeen.Before(cutoff)
		vi.mu.Unlock()
		if stale {
			l.visitors.Delete(k)
		}
		return true
	})
}

// Run sweeps idle visitors until stop is closed.
func (l *IPRateLimiter) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}

func (l *IPRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getIP(c)
		if !l.getLimiter(ip, time.Now()).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
			return apperr.RateLimited("Too many attempts, please try again later.")
		}
		return c.Next()
	}
}

func getIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		ip = "unknown"
	}
	host, _, err := net.SplitHostPort(ip)
	if err == nil {
		return host
	}
	return ip
}
