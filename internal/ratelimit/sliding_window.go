// Package ratelimit implements per-client sliding-window submission limits.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow admits at most limit submissions per client within any
// trailing window. It is safe for concurrent use.
type SlidingWindow struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	clients map[string][]time.Time
}

// NewSlidingWindow creates an in-memory limiter.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
	}
}

// Admit appends now to the client's history, drops entries that fell out of
// the window and reports whether the remaining count is within the limit.
// A rejected submission still counts against the client.
func (s *SlidingWindow) Admit(_ context.Context, clientID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := prune(append(s.clients[clientID], now), now, s.window)
	s.clients[clientID] = history
	return len(history) <= s.limit
}

// Sweep evicts clients with no submissions inside the window and returns how
// many were removed.
func (s *SlidingWindow) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, history := range s.clients {
		history = prune(history, now, s.window)
		if len(history) == 0 {
			delete(s.clients, id)
			evicted++
			continue
		}
		s.clients[id] = history
	}
	return evicted
}

// Clients returns the number of tracked client identities.
func (s *SlidingWindow) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Run sweeps idle clients every interval until ctx is cancelled.
func (s *SlidingWindow) Run(ctx context.Context, interval time.Duration, onSweep func(evicted int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n := s.Sweep(now)
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}

// prune keeps entries younger than window. Callers take now outside the
// lock, so history is not guaranteed to be sorted and every entry is checked.
func prune(history []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := history[:0]
	for _, t := range history {
		if now.Sub(t) < window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
