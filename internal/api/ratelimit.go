package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/reelmatch/reelmatch/internal/httputil"
)

// rateLimit is a per-client token bucket. Entries idle for an hour are
// dropped on the next sweep.
func (s *Server) rateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	type bucket struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var mu sync.Mutex
	buckets := map[string]*bucket{}
	lastSweep := time.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			mu.Lock()
			now := time.Now()
			if now.Sub(lastSweep) > time.Hour {
				for key, b := range buckets {
					if now.Sub(b.lastSeen) > time.Hour {
						delete(buckets, key)
					}
				}
				lastSweep = now
			}
			b, ok := buckets[host]
			if !ok {
				b = &bucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				buckets[host] = b
			}
			b.lastSeen = now
			allowed := b.limiter.Allow()
			mu.Unlock()

			if !allowed {
				httputil.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
