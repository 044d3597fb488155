package gromozeka

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// DelayedTask is a function scheduled to run once at a fixed time.
type DelayedTask func(ctx context.Context)

type delayedEntry struct {
	at    time.Time
	fn    DelayedTask
	index int
}

type delayHeap []*delayedEntry

func (h delayHeap) Len() int            { return len(h) }
func (h delayHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h delayHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *delayHeap) Push(x any)         { e := x.(*delayedEntry); e.index = len(*h); *h = append(*h, e) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// DelayQueue runs delayed tasks from a priority queue keyed by firing time.
// A dedicated timer goroutine drains due entries; Run blocks until ctx is
// cancelled.
type DelayQueue struct {
	mu     sync.Mutex
	heap   delayHeap
	wake   chan struct{}
	logger *slog.Logger
}

// NewDelayQueue creates an empty queue. A nil logger discards output.
func NewDelayQueue(logger *slog.Logger) *DelayQueue {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DelayQueue{wake: make(chan struct{}, 1), logger: logger}
}

// After schedules fn to run d from now.
func (q *DelayQueue) After(d time.Duration, fn DelayedTask) {
	q.At(time.Now().Add(d), fn)
}

// At schedules fn to run at the given time.
func (q *DelayQueue) At(at time.Time, fn DelayedTask) {
	q.mu.Lock()
	heap.Push(&q.heap, &delayedEntry{at: at, fn: fn})
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending tasks.
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Run pulls due tasks and invokes them until ctx is cancelled. Task panics
// are recovered and logged so one bad task cannot stop the timer loop.
func (q *DelayQueue) Run(ctx context.Context) {
	for {
		q.mu.Lock()
		var wait time.Duration
		if len(q.heap) == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(q.heap[0].at)
		}
		q.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-q.wake:
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		for {
			q.mu.Lock()
			if len(q.heap) == 0 || q.heap[0].at.After(time.Now()) {
				q.mu.Unlock()
				break
			}
			e := heap.Pop(&q.heap).(*delayedEntry)
			q.mu.Unlock()
			q.runTask(ctx, e.fn)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (q *DelayQueue) runTask(ctx context.Context, fn DelayedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("delayed task panicked", "panic", r)
		}
	}()
	fn(ctx)
}
