package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// EdgeLimiter applies a coarse per-IP budget in front of the whole API,
// ahead of authentication. It is a process-local abuse brake, not the
// per-scope quota — that is the sliding-window limiter in the pipeline.
type EdgeLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewEdgeLimiter creates a per-IP limiter and starts its cleanup loop.
func NewEdgeLimiter(rps, burst int) *EdgeLimiter {
	el := &EdgeLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go el.cleanupVisitors()
	return el
}

func (el *EdgeLimiter) getVisitor(ip string) *rate.Limiter {
	el.mu.Lock()
	defer el.mu.Unlock()

	v, exists := el.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(el.rps, el.burst)
		el.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupVisitors removes stale entries to prevent unbounded growth.
// Checks every minute, removes entries idle longer than 3 minutes.
func (el *EdgeLimiter) cleanupVisitors() {
	for {
		time.Sleep(1 * time.Minute)
		el.mu.Lock()
		for ip, v := range el.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(el.visitors, ip)
			}
		}
		el.mu.Unlock()
	}
}

// Middleware enforces the per-IP budget. Health probes are exempt:
// infrastructure must always be able to probe.
func (el *EdgeLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.Trim(r.RemoteAddr, "[]")
		}

		if !el.getVisitor(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited,
				"too many requests from this address")
			return
		}

		next.ServeHTTP(w, r)
	})
}
