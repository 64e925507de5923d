package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	checkoutKeyPrefix = "dormhub:ratelimit:checkout:"

	localSweepThreshold = 1024
	localIdleTTL        = 10 * time.Minute
)

// Decision is the outcome of a limiter check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Degraded is set when the shared bucket failed and the local one answered.
	Degraded bool
}

// CheckoutLimiter caps checkout creation per client key. With redis the
// bucket is shared across replicas, otherwise each process keeps its own.
type CheckoutLimiter struct {
	bucket *TokenBucket
	clock  clock.Clock
	log    *zap.Logger

	perSecond float64
	burst     int

	mu    sync.Mutex
	local map[string]*localEntry
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewCheckoutLimiter allows cfg.Payment.CheckoutRateLimit requests per minute
// per key. A non-positive limit disables limiting.
func NewCheckoutLimiter(cfg config.Config, bucket *TokenBucket, clk clock.Clock, log *zap.Logger) *CheckoutLimiter {
	perMinute := cfg.Payment.CheckoutRateLimit
	if perMinute <= 0 {
		return nil
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutLimiter{
		bucket:    bucket,
		clock:     clk,
		log:       log.Named("rate.limit.checkout"),
		perSecond: float64(perMinute) / 60,
		burst:     perMinute,
		local:     make(map[string]*localEntry),
	}
}

// Allow consumes one token for key. A nil limiter allows everything.
func (l *CheckoutLimiter) Allow(ctx context.Context, key string) Decision {
	if l == nil {
		return Decision{Allowed: true}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	if l.bucket != nil {
		result, err := l.bucket.Allow(ctx, checkoutKeyPrefix+key, l.perSecond, l.burst)
		if err == nil {
			return Decision{Allowed: result.Allowed, RetryAfter: result.RetryAfter}
		}
		l.log.Warn("shared rate limit unavailable, using local bucket", zap.Error(err))
		decision := l.allowLocal(key)
		decision.Degraded = true
		return decision
	}
	return l.allowLocal(key)
}

func (l *CheckoutLimiter) allowLocal(key string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.local[key]
	if !ok {
		if len(l.local) >= localSweepThreshold {
			l.sweepLocked(now)
		}
		entry = &localEntry{limiter: rate.NewLimiter(rate.Limit(l.perSecond), l.burst)}
		l.local[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{Allowed: false}
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}
	}
	return Decision{Allowed: true}
}

func (l *CheckoutLimiter) sweepLocked(now time.Time) {
	for key, entry := range l.local {
		if now.Sub(entry.lastSeen) > localIdleTTL {
			delete(l.local, key)
		}
	}
}
