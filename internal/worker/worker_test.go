package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(context.Background(), 2, 8)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		ok := p.Submit(Task{Name: "count", Run: func(ctx context.Context) error {
			n.Add(1)
			return nil
		}})
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	p.Wait()

	if n.Load() != 5 {
		t.Errorf("expected 5 runs, got %d", n.Load())
	}
	s := p.Stats()
	if s.Submitted != 5 || s.Completed != 5 || s.Failed != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := New(context.Background(), 2, 16)

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		p.Submit(Task{Name: "slow", Run: func(ctx context.Context) error {
			cur := running.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		}})
	}
	p.Wait()

	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent tasks, saw %d", peak.Load())
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	p := New(context.Background(), 1, 1)

	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started

	// One slot in the queue, plus one task the dispatcher may already be
	// holding while the worker is busy.
	accepted := 0
	begin := time.Now()
	for i := 0; i < 10; i++ {
		if p.Submit(Task{Name: "filler", Run: func(ctx context.Context) error { return nil }}) {
			accepted++
		}
	}
	if time.Since(begin) > 100*time.Millisecond {
		t.Error("Submit blocked")
	}
	if accepted > 2 {
		t.Errorf("expected at most 2 accepted while saturated, got %d", accepted)
	}
	if p.Stats().Dropped == 0 {
		t.Error("expected dropped tasks to be counted")
	}

	close(release)
	p.Wait()
}

func TestFailuresAndPanicsAreContained(t *testing.T) {
	p := New(context.Background(), 1, 4)

	p.Submit(Task{Name: "fail", Run: func(ctx context.Context) error {
		return errors.New("encoder exited 1")
	}})
	p.Submit(Task{Name: "panic", Run: func(ctx context.Context) error {
		panic("boom")
	}})
	var after sync.WaitGroup
	after.Add(1)
	p.Submit(Task{Name: "after", Run: func(ctx context.Context) error {
		after.Done()
		return nil
	}})
	p.Wait()
	after.Wait()

	s := p.Stats()
	if s.Failed != 2 || s.Completed != 1 {
		t.Errorf("expected 2 failed and 1 completed, got %+v", s)
	}
}

func TestSubmitAfterWaitRejected(t *testing.T) {
	p := New(context.Background(), 1, 4)
	p.Wait()
	p.Wait()

	if p.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }}) {
		t.Error("expected submit after Wait to be rejected")
	}
}

func TestTasksReceiveContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "booth")
	p := New(ctx, 1, 1)

	var got atomic.Value
	p.Submit(Task{Name: "ctx", Run: func(ctx context.Context) error {
		got.Store(ctx.Value(key{}))
		return nil
	}})
	p.Wait()

	if got.Load() != "booth" {
		t.Errorf("expected context value, got %v", got.Load())
	}
}
