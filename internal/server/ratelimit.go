package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kbforge/graphrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests/second allowed per IP when
	// no explicit limit is configured.
	defaultRateLimit = 10
	// defaultRateBurst absorbs a batch of ingest calls without immediate
	// rejection.
	defaultRateBurst = 20
	// visitorTTL is how long an idle IP keeps its token bucket before the
	// sweeper drops it.
	visitorTTL = 5 * time.Minute
	// sweepInterval is how often the sweeper scans for idle visitors.
	sweepInterval = time.Minute
)

// visitor is the per-IP rate-limit state.
type visitor struct {
	bucket *rate.Limiter
	// lastSeen gates eviction; refreshed on every request from this IP.
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token-bucket limit. Idle visitors are swept
// periodically so the map stays bounded by the set of recently active IPs.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	log      *slog.Logger
}

// newRateLimiter builds a rateLimiter and starts its sweeper goroutine. The
// returned stop function terminates the sweeper.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		log:      log,
	}
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()
	return rl, func() { close(stopCh) }
}

// allow reports whether a request from ip fits its token bucket, creating the
// bucket on first sight.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{bucket: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	rl.mu.Unlock()
	return v.bucket.Allow()
}

// sweep drops visitors idle for longer than visitorTTL.
func (rl *rateLimiter) sweep() {
	cutoff := time.Now().Add(-visitorTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// middleware rejects over-limit requests with a JSON 429 and a Retry-After
// header before delegating to next.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.allow(ip) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. X-Forwarded-For is deliberately
// ignored: the server binds to loopback by default and a spoofable header
// must not select the rate bucket.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
