package gromozeka

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestDelayQueueFiresInOrder(t *testing.T) {
	q := NewDelayQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var order []int
	done := make(chan struct{})
	q.After(80*time.Millisecond, func(context.Context) {
		order = append(order, 2)
		close(done)
	})
	q.After(20*time.Millisecond, func(context.Context) {
		order = append(order, 1)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not fire")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected firing order: %v", order)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not drained: %d", q.Len())
	}
}

func TestDelayQueueSurvivesPanic(t *testing.T) {
	q := NewDelayQueue(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	var ran atomic.Bool
	q.After(10*time.Millisecond, func(context.Context) { panic("boom") })
	q.After(30*time.Millisecond, func(context.Context) { ran.Store(true) })

	time.Sleep(200 * time.Millisecond)
	if !ran.Load() {
		t.Fatal("task after panic did not run")
	}
}
