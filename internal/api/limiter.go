package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

const defaultSweepAt = 1024

// limiterPool hands out one token bucket per client host. Once the pool holds
// sweepAt entries, buckets that have refilled to full burst are dropped: a
// fresh bucket for that host behaves identically.
type limiterPool struct {
	mu      sync.Mutex
	m       map[string]*rate.Limiter
	rps     float64
	burst   int
	sweepAt int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst, sweepAt: defaultSweepAt}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	if len(p.m) >= p.sweepAt {
		p.sweep()
	}
	l := rate.NewLimiter(rate.Limit(p.rps), p.burst)
	p.m[key] = l
	return l
}

// sweep must be called with mu held.
func (p *limiterPool) sweep() {
	for key, l := range p.m {
		if l.Tokens() >= float64(p.burst) {
			delete(p.m, key)
		}
	}
}

func (p *limiterPool) Allow(r *http.Request) bool {
	return p.get(clientKey(r)).Allow()
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
