package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolVisitsEveryIndexInOrderSlots(t *testing.T) {
	for _, n := range []int{0, 2, 3, 10} {
		p := NewPool(4, 3)
		results := make([]int, n)
		err := p.Run(context.Background(), n, false, func(ctx context.Context, i int) error {
			time.Sleep(time.Duration(n-i) * time.Millisecond)
			results[i] = i * i
			return nil
		})
		if err != nil {
			t.Fatalf("n=%d: Run returned error: %v", n, err)
		}
		for i, v := range results {
			if v != i*i {
				t.Errorf("n=%d: results[%d] = %d", n, i, v)
			}
		}
	}
}

func TestPoolRespectsWorkerLimit(t *testing.T) {
	p := NewPool(2, 0)
	var active, peak int32
	err := p.Run(context.Background(), 12, false, func(ctx context.Context, i int) error {
		cur := atomic.AddInt32(&active, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestPoolSerialBelowThreshold(t *testing.T) {
	p := NewPool(8, 3)
	var active, peak int32
	_ = p.Run(context.Background(), 3, false, func(ctx context.Context, i int) error {
		cur := atomic.AddInt32(&active, 1)
		if cur > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, cur)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	})
	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1 for a serial batch", peak)
	}
}

func TestPoolNonFailFastContinues(t *testing.T) {
	for _, threshold := range []int{0, 100} {
		p := NewPool(3, threshold)
		var visited int32
		err := p.Run(context.Background(), 10, false, func(ctx context.Context, i int) error {
			atomic.AddInt32(&visited, 1)
			if i%2 == 0 {
				return errors.New("odd failure")
			}
			return nil
		})
		if err != nil {
			t.Errorf("threshold %d: Run returned error: %v", threshold, err)
		}
		if visited != 10 {
			t.Errorf("threshold %d: visited %d, want 10", threshold, visited)
		}
	}
}

func TestPoolFailFastStops(t *testing.T) {
	boom := errors.New("boom")
	for _, threshold := range []int{0, 100} {
		p := NewPool(2, threshold)
		var visited int32
		err := p.Run(context.Background(), 50, true, func(ctx context.Context, i int) error {
			atomic.AddInt32(&visited, 1)
			if i == 0 {
				return boom
			}
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Millisecond):
			}
			return nil
		})
		if !errors.Is(err, boom) {
			t.Errorf("threshold %d: Run() = %v, want boom", threshold, err)
		}
		if visited >= 50 {
			t.Errorf("threshold %d: fail-fast visited all %d indices", threshold, visited)
		}
	}
}

func TestPoolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPool(2, 0)
	var visited int32
	err := p.Run(ctx, 5, false, func(ctx context.Context, i int) error {
		atomic.AddInt32(&visited, 1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if visited != 0 {
		t.Errorf("visited %d indices after cancellation", visited)
	}
}
