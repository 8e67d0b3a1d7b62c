package middleware

import (
	"WeaponGuard/pkg/log"
	"WeaponGuard/pkg/response"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

var (
	ErrTooManyRequests = response.NewError(http.StatusTooManyRequests, "too many requests")
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	bucket    map[string]*limiterEntry
	rate      rate.Limit
	burstSize int
	mutex     *sync.RWMutex
	lastSweep time.Time
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		bucket:    make(map[string]*limiterEntry),
		rate:      reqRate,
		burstSize: burstSize,
		mutex:     &sync.RWMutex{},
		lastSweep: time.Now(),
	}
}

func (r *rateLimiter) GetLimiterFrom(ip string) *rate.Limiter {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	r.sweep(now)

	entry, exist := r.bucket[ip]
	if !exist {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.rate, r.burstSize)}
		r.bucket[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// sweep drops limiters of clients idle for longer than limiterIdleTTL.
// Must be called with mutex held.
func (r *rateLimiter) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < limiterIdleTTL {
		return
	}
	for ip, entry := range r.bucket {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(r.bucket, ip)
		}
	}
	r.lastSweep = now
}

func (m *middleware) NewRateLimiter(ctx *fiber.Ctx) error {
	clientIP := ctx.IP()
	limiter := m.rateLimitter.GetLimiterFrom(clientIP)

	if !limiter.Allow() {
		m.log.WithFields(log.Fields{
			"request_id": m.GetRequestID(ctx),
			"ip":         clientIP,
			"path":       ctx.Path(),
		}).Warn("Too many requests")
		return ctx.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": ErrTooManyRequests.Error(),
		})
	}

	return ctx.Next()
}
