package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// clientLimiter keeps one token bucket per client address. A non-positive
// rate disables limiting. Buckets idle for longer than idle are pruned.
type clientLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	rps     float64
	burst   int
	idle    time.Duration
	now     func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int, idle time.Duration) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &clientLimiter{
		clients: make(map[string]*clientEntry),
		rps:     rps,
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

func (c *clientLimiter) allow(client string) bool {
	if c.rps <= 0 {
		return true
	}
	c.mu.Lock()
	e, ok := c.clients[client]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(rate.Limit(c.rps), c.burst)}
		c.clients[client] = e
	}
	e.lastSeen = c.now()
	c.mu.Unlock()
	return e.limiter.Allow()
}

// prune drops buckets not used within the idle window and returns how many
// were removed.
func (c *clientLimiter) prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.idle)
	n := 0
	for client, e := range c.clients {
		if e.lastSeen.Before(cutoff) {
			delete(c.clients, client)
			n++
		}
	}
	return n
}

func (c *clientLimiter) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// PruneClients sweeps idle rate-limit buckets until ctx is done.
func (s *Server) PruneClients(ctx context.Context) error {
	if s.limiter.rps <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.limiter.idle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.limiter.prune(); n > 0 {
				log.Debug().Int("removed", n).Int("remaining", s.limiter.size()).Msg("pruned idle rate limiters")
			}
		}
	}
}
