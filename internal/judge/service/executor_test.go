package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"hsoj/internal/judge/result"
	"hsoj/internal/judge/service"
)

func TestPoolExecutorKeepsIndexOrder(t *testing.T) {
	t.Parallel()
	var running, peak int32
	fn := func(ctx context.Context, i int) (result.JudgeResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Duration(8-i) * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return result.JudgeResult{ExitCode: i}, nil
	}

	results, err := service.PoolExecutor{Workers: 3}.Execute(context.Background(), 8, fn)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for i, r := range results {
		if r.ExitCode != i {
			t.Fatalf("result %d out of order: %+v", i, r)
		}
	}
	if peak > 3 {
		t.Fatalf("expected at most 3 concurrent tests, saw %d", peak)
	}
}

func TestExecutorsStopOnError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	executors := map[string]service.TestExecutor{
		"sequential": service.SequentialExecutor{},
		"pool":       service.PoolExecutor{Workers: 1},
	}
	for name, exec := range executors {
		var calls int32
		fn := func(ctx context.Context, i int) (result.JudgeResult, error) {
			atomic.AddInt32(&calls, 1)
			if i == 1 {
				return result.JudgeResult{}, boom
			}
			return result.JudgeResult{}, nil
		}
		results, err := exec.Execute(context.Background(), 5, fn)
		if !errors.Is(err, boom) {
			t.Fatalf("%s: expected boom, got %v", name, err)
		}
		if results != nil {
			t.Fatalf("%s: results must be discarded on error", name)
		}
		if calls != 2 {
			t.Fatalf("%s: expected 2 calls before stopping, got %d", name, calls)
		}
	}
}

func TestSequentialExecutorRunsInOrder(t *testing.T) {
	t.Parallel()
	var order []int
	_, err := service.SequentialExecutor{}.Execute(context.Background(), 4, func(ctx context.Context, i int) (result.JudgeResult, error) {
		order = append(order, i)
		return result.JudgeResult{}, nil
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("unexpected order %v", order)
		}
	}
}
