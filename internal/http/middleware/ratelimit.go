package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/harrowgate/epv/internal/domain"
)

// RateLimit enforces num requests per window per client IP, using one
// token bucket per remote address. A burst of num lets a caller spend
// the whole window's budget immediately, which is what the config's
// single (num, window) pair is meant to express. It runs ahead of Auth
// in the middleware chain, so it has no identity to key on yet -- and
// keying on IP rather than identity is also what stops an
// unauthenticated caller from exhausting someone else's bucket by
// guessing a username.
type RateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

func NewRateLimit(num int, window time.Duration) *RateLimit {
	every := rate.Every(window / time.Duration(num))
	return &RateLimit{
		limiters: make(map[string]*rate.Limiter),
		every:    every,
		burst:    num,
	}
}

func (r *RateLimit) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.every, r.burst)
		r.limiters[key] = l
	}
	return l
}

// Middleware wraps next, rejecting with Ratelimited once the caller's
// bucket is empty.
func (r *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !r.limiterFor(req.RemoteAddr).Allow() {
			payload := domain.Ratelimited().Payload()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(payload)
			return
		}
		next.ServeHTTP(w, req)
	})
}
