// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// window tracks request timestamps for a single client.
type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// RateLimiter limits generate requests per client with a sliding window.
// Clients are keyed by session user when one is loaded, otherwise by IP.
type RateLimiter struct {
	mu      sync.RWMutex
	clients map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
	trusted []netip.Prefix
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a rate limiter that allows limit requests per
// period. It starts a background goroutine that evicts idle clients until
// Stop is called.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stopCh:
				return
			}
		}
	}()

	return rl
}

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// allow records a hit for key and reports whether it fits in the window.
// When it does not, the returned duration is the time until the oldest hit
// leaves the window.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	rl.mu.RLock()
	w, ok := rl.clients[key]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		w, ok = rl.clients[key]
		if !ok {
			w = &window{}
			rl.clients[key] = w
		}
		rl.mu.Unlock()
	}

	now := rl.now()
	cutoff := now.Add(-rl.period)

	w.mu.Lock()
	defer w.mu.Unlock()

	valid := w.hits[:0]
	for _, ts := range w.hits {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	w.hits = valid

	if len(w.hits) >= rl.limit {
		return false, w.hits[0].Sub(cutoff)
	}

	w.hits = append(w.hits, now)
	return true, 0
}

// cleanup removes clients with no hit inside the window.
func (rl *RateLimiter) cleanup() {
	cutoff := rl.now().Add(-rl.period)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.clients {
		w.mu.Lock()
		idle := len(w.hits) == 0 || !w.hits[len(w.hits)-1].After(cutoff)
		w.mu.Unlock()

		if idle {
			delete(rl.clients, key)
		}
	}
}

// TrustProxies makes the limiter believe X-Forwarded-For and X-Real-IP
// when the request comes from one of the given prefixes. Call it before
// serving requests.
func (rl *RateLimiter) TrustProxies(prefixes ...netip.Prefix) {
	rl.trusted = append(rl.trusted, prefixes...)
}

// Middleware rejects clients over the limit with 429 and a Retry-After
// header. A non-positive limit disables limiting.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ok, retry := rl.allow(rl.clientKey(r))
		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller: the session user when one is loaded,
// otherwise the client IP.
func (rl *RateLimiter) clientKey(r *http.Request) string {
	if sess := SessionFromCtx(r.Context()); sess != nil {
		return "user:" + sess.UserID.String()
	}
	return "ip:" + rl.clientIP(r)
}

// clientIP returns the peer address. Forwarding headers are only read when
// the peer is a trusted proxy; X-Forwarded-For is then walked from the
// right, skipping further trusted hops.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !rl.isTrusted(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !rl.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return remote
}

func (rl *RateLimiter) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
