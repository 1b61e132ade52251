package service

import (
	"context"

	"hsoj/internal/judge/result"

	"golang.org/x/sync/errgroup"
)

// TestFunc judges the test case at index.
type TestFunc func(ctx context.Context, index int) (result.JudgeResult, error)

// TestExecutor drives a run over count test cases. Results are returned in
// index order. Any error aborts the run and no results are returned.
type TestExecutor interface {
	Execute(ctx context.Context, count int, fn TestFunc) ([]result.JudgeResult, error)
}

// SequentialExecutor runs tests one after another and stops at the first error.
type SequentialExecutor struct{}

func (SequentialExecutor) Execute(ctx context.Context, count int, fn TestFunc) ([]result.JudgeResult, error) {
	results := make([]result.JudgeResult, 0, count)
	for i := 0; i < count; i++ {
		res, err := fn(ctx, i)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// PoolExecutor runs up to Workers tests at once. Tests not yet started when
// one fails are skipped; tests already running finish.
type PoolExecutor struct {
	Workers int
}

func (p PoolExecutor) Execute(ctx context.Context, count int, fn TestFunc) ([]result.JudgeResult, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	results := make([]result.JudgeResult, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := fn(ctx, i)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
