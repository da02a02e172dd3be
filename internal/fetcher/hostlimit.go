package fetcher

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostLimiter enforces per-host politeness: a token-bucket rate per host plus
// a hard cap on concurrent in-flight requests to the same host. The worker
// pool bounds global concurrency; this bounds what any single venue site sees.
type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	slots    map[string]chan struct{}
	rps      rate.Limit
	burst    int
	inflight int
}

func newHostLimiter(rps float64, burst, inflight int) *hostLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	if inflight <= 0 {
		inflight = 1
	}
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		slots:    make(map[string]chan struct{}),
		rps:      rate.Limit(rps),
		burst:    burst,
		inflight: inflight,
	}
}

func (h *hostLimiter) forHost(host string) (*rate.Limiter, chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.limiters[host]
	if !ok {
		lim = rate.NewLimiter(h.rps, h.burst)
		h.limiters[host] = lim
	}
	slot, ok := h.slots[host]
	if !ok {
		slot = make(chan struct{}, h.inflight)
		h.slots[host] = slot
	}
	return lim, slot
}

// acquire blocks until the host has both a rate token and a free in-flight
// slot, or ctx is done. The returned release must be called when the request
// finishes.
func (h *hostLimiter) acquire(ctx context.Context, host string) (func(), error) {
	lim, slot := h.forHost(host)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := lim.Wait(ctx); err != nil {
		<-slot
		return nil, err
	}

	return func() { <-slot }, nil
}
