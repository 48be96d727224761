// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Package throttle limits the request rate per client.
package throttle

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/relabs-tech/pret/core/logger"
)

// Builder is a builder helper for the throttle middleware
type Builder struct {
	// Limit is the number of requests a client may make per TTL
	Limit int
	// TTL is the time window of the limit
	TTL time.Duration
	// Key identifies the client of a request. Defaults to ClientIP.
	Key func(r *http.Request) string
	// Now is used for testing, defaults to time.Now
	Now func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Throttle keeps one token bucket per client. A bucket holds Limit tokens
// and refills at Limit per TTL.
type Throttle struct {
	mu      sync.Mutex
	m       map[string]*entry
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	key     func(r *http.Request) string
	now     func() time.Time
	pruneAt time.Time
}

// New creates a new throttle. A non-positive limit disables throttling.
func New(tb *Builder) *Throttle {
	t := &Throttle{
		m:   make(map[string]*entry),
		ttl: tb.TTL,
		key: tb.Key,
		now: tb.Now,
	}
	if t.ttl <= 0 {
		t.ttl = time.Minute
	}
	if tb.Limit > 0 {
		t.burst = tb.Limit
		t.limit = rate.Every(t.ttl / time.Duration(tb.Limit))
	}
	if t.key == nil {
		t.key = ClientIP
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Allow reports whether a request of the client may pass
func (t *Throttle) Allow(key string) bool {
	if t.burst == 0 {
		return true
	}
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune(now)
	e, ok := t.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.m[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops clients which were idle for a full window, their buckets are full again anyway
func (t *Throttle) prune(now time.Time) {
	if now.Before(t.pruneAt) {
		return
	}
	for key, e := range t.m {
		if now.Sub(e.lastSeen) > t.ttl {
			delete(t.m, key)
		}
	}
	t.pruneAt = now.Add(t.ttl)
}

// Middleware answers requests over the limit with 429 Too Many Requests
func (t *Throttle) Middleware() mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := t.key(r)
			if !t.Allow(key) {
				logger.FromContext(r.Context()).Warnf("throttled %s %s for %s", r.Method, r.URL.Path, key)
				w.Header().Set("Retry-After", strconv.Itoa(int(t.ttl.Seconds())))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first address of X-Forwarded-For, or the remote address
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
