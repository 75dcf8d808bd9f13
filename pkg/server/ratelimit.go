package server

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = time.Minute
	limiterStaleAfter    = 5 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanoseconds
}

// limiter tracks a token bucket per client IP. Idle buckets are evicted by
// a background sweep until Stop is called.
type limiter struct {
	rate  rate.Limit
	burst int
	ips   sync.Map // string -> *limiterEntry

	stop     chan struct{}
	stopOnce sync.Once
}

func newLimiter(rps float64, burst int) *limiter {
	if burst < 1 {
		burst = 1
	}
	l := &limiter{
		rate:  rate.Limit(rps),
		burst: burst,
		stop:  make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether a request from ip may proceed now.
func (l *limiter) Allow(ip string) bool {
	now := time.Now()
	v, ok := l.ips.Load(ip)
	if !ok {
		v, _ = l.ips.LoadOrStore(ip, &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)})
	}
	e := v.(*limiterEntry)
	e.lastSeen.Store(now.UnixNano())
	return e.limiter.AllowN(now, 1)
}

// Stop ends the background sweep. It is safe to call more than once.
func (l *limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *limiter) sweep() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

func (l *limiter) evict(now time.Time) {
	cutoff := now.Add(-limiterStaleAfter).UnixNano()
	l.ips.Range(func(key, value any) bool {
		if value.(*limiterEntry).lastSeen.Load() < cutoff {
			l.ips.Delete(key)
		}
		return true
	})
}
