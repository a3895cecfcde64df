package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter tracks request counts per key within a sliding window.
type Limiter struct {
	mu      sync.Mutex
	entries map[string][]time.Time
	max     int
	window  time.Duration
}

// New creates a Limiter allowing max requests per window.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Allow returns true if the key has not exceeded the rate limit.
// If allowed, the request is recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	timestamps := l.entries[key]
	valid := timestamps[:0]
	for _, t := range timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= l.max {
		l.entries[key] = valid
		return false
	}

	l.entries[key] = append(valid, now)
	return true
}

// Wrap returns a handler that rejects over-limit clients with 429,
// keyed by remote IP.
func (l *Limiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !l.Allow(host) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
