package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginLimiter caps login attempts per client IP.
type LoginLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLoginLimiter allows perMinute attempts per IP with a burst of the same
// size. perMinute <= 0 returns nil, which allows everything.
func NewLoginLimiter(perMinute int) *LoginLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &LoginLimiter{
		limiters: make(map[string]*ipLimiter),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idle:     10 * time.Minute,
		now:      time.Now,
	}
}

func (l *LoginLimiter) Allow(ip string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	il, ok := l.limiters[ip]
	if !ok {
		il = &ipLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = il
	}
	il.lastSeen = now
	return il.lim.AllowN(now, 1)
}

// Sweep forgets IPs idle for longer than the refill window.
func (l *LoginLimiter) Sweep() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idle)
	for ip, il := range l.limiters {
		if il.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
