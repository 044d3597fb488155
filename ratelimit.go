package gromozeka

import (
	"context"
	"sync"
	"time"
)

// LimitRule configures one named sliding-window limiter.
type LimitRule struct {
	MaxRequests int
	Window      time.Duration
}

// Limiters is a registry of named sliding-window rate limiters governing
// outbound request admission. One registry is created at process start and
// injected into every client; limiter identity persists for the process
// lifetime.
type Limiters struct {
	mu      sync.Mutex
	queues  map[string]*slidingWindow
	aliases map[string]string
}

// NewLimiters builds a registry from named rules.
func NewLimiters(rules map[string]LimitRule) *Limiters {
	l := &Limiters{
		queues:  make(map[string]*slidingWindow, len(rules)),
		aliases: make(map[string]string),
	}
	for name, r := range rules {
		l.queues[name] = &slidingWindow{max: r.MaxRequests, window: r.Window}
	}
	return l
}

// Bind routes alias to target's limiter. Requests admitted under either
// name share one window.
func (l *Limiters) Bind(alias, target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aliases[alias] = target
}

// Apply blocks until the named queue admits a request. Unknown queues admit
// immediately. Returns ctx.Err() if the context is cancelled while waiting.
func (l *Limiters) Apply(ctx context.Context, queue string) error {
	l.mu.Lock()
	if target, ok := l.aliases[queue]; ok {
		queue = target
	}
	w := l.queues[queue]
	l.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.acquire(ctx)
}

// slidingWindow admits at most max requests in any window-long interval.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time
}

// acquire blocks until the window has budget. Returns ctx.Err() if the
// context is cancelled while waiting.
func (w *slidingWindow) acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-w.window)

		// Prune expired entries.
		i := 0
		for i < len(w.sent) && w.sent[i].Before(cutoff) {
			i++
		}
		w.sent = w.sent[i:]

		if w.max <= 0 || len(w.sent) < w.max {
			w.sent = append(w.sent, now)
			w.mu.Unlock()
			return nil
		}

		// Wait until the oldest entry slides out of the window.
		wait := w.sent[0].Add(w.window).Sub(now)
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		w.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
