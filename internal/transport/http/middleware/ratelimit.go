package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hrportal/internal/transport/http/api"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*RateLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(rl *RateLimiter) {
		if fn != nil {
			rl.keyFn = fn
		}
	}
}

// WithRejectHandler replaces the JSON 429 response, e.g. for HTML forms.
func WithRejectHandler(h http.HandlerFunc) RateLimitOption {
	return func(rl *RateLimiter) {
		if h != nil {
			rl.reject = h
		}
	}
}

// WithTrustedProxies lets peers inside prefixes name the client through
// X-Forwarded-For. Without it the header is ignored and the socket peer is
// the key.
func WithTrustedProxies(prefixes []netip.Prefix) RateLimitOption {
	return func(rl *RateLimiter) {
		rl.trusted = append([]netip.Prefix(nil), prefixes...)
	}
}

func withClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimiter) {
		rl.now = now
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key (client IP by default). Buckets idle
// for longer than the refill period are dropped on the next request.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyedLimiter
	limit    rate.Limit
	burst    int
	interval int
	idle     time.Duration
	keyFn    RateLimitKeyFunc
	reject   http.HandlerFunc
	now      func() time.Time
	lastGC   time.Time
	trusted  []netip.Prefix
}

// NewRateLimiter allows perMinute requests per key, refilled evenly across
// the minute, with bursts up to perMinute.
func NewRateLimiter(perMinute int, opts ...RateLimitOption) *RateLimiter {
	rl := &RateLimiter{
		limiters: map[string]*keyedLimiter{},
		burst:    max(perMinute, 1),
		idle:     2 * time.Minute,
		reject:   rejectJSON,
		now:      time.Now,
	}
	if perMinute > 0 {
		rl.limit = rate.Limit(float64(perMinute) / 60)
		rl.interval = (60 + perMinute - 1) / perMinute
	} else {
		rl.limit = rate.Inf
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.keyFn == nil {
		rl.keyFn = rl.clientIP
	}
	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(w, r) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(w http.ResponseWriter, r *http.Request) bool {
	key := rl.keyFn(r)
	if key == "" {
		key = rl.clientIP(r)
	}
	now := rl.now()
	limiter := rl.limiterFor(key, now)

	if limiter.AllowN(now, 1) {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(rl.interval, 1)))
	GetLogger(r.Context()).Warn().
		Str("key", key).
		Str("path", r.URL.Path).
		Str("method", r.Method).
		Msg("rate limit exceeded")
	rl.reject(w, r)
	return false
}

func (rl *RateLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastGC) > rl.idle {
		for k, l := range rl.limiters {
			if now.Sub(l.lastSeen) > rl.idle {
				delete(rl.limiters, k)
			}
		}
		rl.lastGC = now
	}

	if l, ok := rl.limiters[key]; ok {
		l.lastSeen = now
		return l.limiter
	}
	l := &keyedLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst), lastSeen: now}
	rl.limiters[key] = l
	return l.limiter
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func rejectJSON(w http.ResponseWriter, r *http.Request) {
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
}

// clientIP is the socket peer unless that peer is a trusted proxy. Then the
// X-Forwarded-For chain is walked from the right and the first hop outside
// the trusted set is the client.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.isTrusted(peer) {
		return peer
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !rl.isTrusted(hop) {
			return hop
		}
		peer = hop
	}
	return peer
}

func (rl *RateLimiter) isTrusted(host string) bool {
	if len(rl.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range rl.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	return remoteAddr
}
