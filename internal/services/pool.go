package services

import (
	"context"

	"github.com/Lllllllleong/docmerge/internal/models"
	"golang.org/x/sync/errgroup"
)

// Pool runs the per-document work of one pipeline stage. Batches no larger
// than SerialThreshold run in the calling goroutine; larger ones run on at
// most Workers goroutines.
type Pool struct {
	Workers         int
	SerialThreshold int
}

func NewPool(workers, serialThreshold int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{Workers: workers, SerialThreshold: serialThreshold}
}

// Run calls fn once for every index in [0, n). fn must only write state
// owned by its index.
//
// With failFast the first error cancels the context passed to the remaining
// calls, stops scheduling and is returned. Otherwise errors from fn are
// ignored (fn records them itself) and every index is visited unless ctx is
// cancelled, in which case ctx.Err() is returned.
func (p *Pool) Run(ctx context.Context, n int, failFast bool, fn func(ctx context.Context, i int) error) error {
	if n <= p.SerialThreshold || p.Workers == 1 {
		return p.serial(ctx, n, failFast, fn)
	}

	if failFast {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.Workers)
		for i := 0; i < n; i++ {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return fn(gctx, i)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		return ctx.Err()
	}

	var g errgroup.Group
	g.SetLimit(p.Workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() == nil {
				_ = fn(ctx, i)
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (p *Pool) serial(ctx context.Context, n int, failFast bool, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil && failFast {
			return err
		}
	}
	return nil
}

// StageResult is the outcome of one document in a batch stage. Path is the
// paginated form to hand to the next stage; it is empty when Err is set.
type StageResult struct {
	Doc     *models.Document
	Path    string
	Err     error
	Warning string
	// Recognized is set when the OCR tool was invoked, whether or not it
	// succeeded.
	Recognized bool
}
