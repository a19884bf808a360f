// Package future is the Go-idiomatic reading of spec.md §9's "callback-
// passing style in source → explicit futures/tasks" design note: Go wraps
// an async call in a Future[T] instead of taking a completion block, and
// the Each/MapEach/MapEachTolerant combinators fan work out over a list
// instead of nesting callbacks.
//
// This intentionally does not port joeycumines-go-utilpkg's go-eventloop
// (a JS-Promise/A+-compatible loop with timer heaps and OS-level I/O
// polling) — see DESIGN.md for why that machinery is disproportionate to
// "one goroutine per RPC call, deliver the result on a channel", which is
// all the Grid Orchestrator and Progress Aggregator actually need.
package future

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Future is a one-shot, read-only handle to the eventual result of an
// async operation.
type Future[T any] struct {
	ch  <-chan T
	err <-chan error
}

// Go starts fn on its own goroutine and returns a Future for its result.
func Go[T any](fn func() (T, error)) Future[T] {
	ch := make(chan T, 1)
	errc := make(chan error, 1)
	go func() {
		v, err := fn()
		if err != nil {
			errc <- err
			close(ch)
			return
		}
		ch <- v
		close(errc)
	}()
	return Future[T]{ch: ch, err: errc}
}

// Wait blocks until the Future resolves or ctx is done, whichever comes
// first.
func (f Future[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case err, ok := <-f.err:
		if ok && err != nil {
			return zero, err
		}
		return <-f.ch, nil
	}
}

// Each runs fn over every item in items sequentially, in order, stopping
// at the first error. This is the combinator spec.md §9 calls "each_slave"
// — the sequential fan-out default.
func Each[T any](items []T, fn func(T) error) error {
	for _, item := range items {
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// MapEach runs fn concurrently over every item in items, bounded by
// maxConcurrency (<=0 means unbounded), collecting all results before
// returning. This is spec.md §9's "map_slaves" — the parallel
// fan-out-with-collection combinator.
func MapEach[T, R any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MapEachTolerant is MapEach, but a failing item is dropped (omitted from
// the returned slice) rather than aborting the whole call — the policy spec.md
// §5/§7 requires for progress/output aggregation: "If a slave RPC fails,
// that slave's contribution is dropped (nil-compacted) but aggregation
// continues."
func MapEachTolerant[T, R any](ctx context.Context, items []T, maxConcurrency int, fn func(context.Context, T) (R, error)) []R {
	type slot struct {
		val R
		ok  bool
	}
	slots := make([]slot, len(items))
	var g errgroup.Group
	if maxConcurrency > 0 {
		g.SetLimit(maxConcurrency)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err == nil {
				slots[i] = slot{val: r, ok: true}
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]R, 0, len(items))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.val)
		}
	}
	return out
}
