// Package issuebuf implements the Issue Buffer (C5): a size/attempt
// auto-flushing buffer for issues, trading live-data latency for bandwidth
// by deferring full issues into batches while a slave streams cheap
// Summaries for the UI in the meantime (spec.md §4.5).
package issuebuf

import (
	"context"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"

	"github.com/gridscan/hpg/internal/issue"
)

const (
	// Size is the buffer's item-count flush threshold (spec.md §3).
	Size = 100
	// FillupAttempts is the push-count flush threshold (spec.md §3).
	FillupAttempts = 10
)

// Sink receives a flushed batch of Issues, typically forwarding them
// upstream to the master via register_issues.
type Sink func(ctx context.Context, batch []issue.Issue) error

// Buffer accumulates Issues until either threshold in spec.md §3/§4.5
// fires, then hands the flushed batch to an asynchronous, bounded-
// concurrency dispatcher so Push never blocks on the network.
//
// Buffer is only ever touched from handlers within one instance (spec.md
// §5: "accessed only from handlers within one instance"), but the mutex is
// kept since Push and Flush are also called from the background run loop.
type Buffer struct {
	mu       sync.Mutex
	items    []issue.Issue
	attempts int

	dispatch *microbatch.Batcher[[]issue.Issue]
}

// New constructs a Buffer that dispatches flushed batches to sink, allowing
// up to maxConcurrency flushes to be in flight upstream at once.
func New(sink Sink, maxConcurrency int) *Buffer {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	b := &Buffer{}
	// Each Submit carries exactly one already-flushed batch as its "job";
	// FlushInterval is disabled since microbatch is used purely for bounded
	// concurrent dispatch here, not for batch accumulation (that's Buffer's
	// own job, per spec.md's attempt-counter trigger which microbatch has no
	// concept of).
	b.dispatch = microbatch.NewBatcher(&microbatch.BatcherConfig{
		MaxSize:        1,
		FlushInterval:  -1,
		MaxConcurrency: maxConcurrency,
	}, func(ctx context.Context, jobs [][]issue.Issue) error {
		for _, batch := range jobs {
			if err := sink(ctx, batch); err != nil {
				return err
			}
		}
		return nil
	})
	return b
}

// Push appends a batch of issues, counts the push as one "attempt", and
// flushes per the buffer flush law (spec.md §8 invariant 5): the callback
// fires iff cumulative size since the last flush >= Size, or the attempt
// count since the last flush >= FillupAttempts.
func (b *Buffer) Push(ctx context.Context, batch []issue.Issue) {
	b.mu.Lock()
	b.items = append(b.items, batch...)
	b.attempts++
	shouldFlush := len(b.items) >= Size || (b.attempts >= FillupAttempts && len(b.items) > 0)
	var flushed []issue.Issue
	if shouldFlush {
		flushed = b.items
		b.items = nil
		b.attempts = 0
	}
	b.mu.Unlock()

	if flushed != nil {
		b.dispatchFlush(ctx, flushed)
	}
}

// Flush unconditionally swaps out the buffer's current contents and resets
// the attempt counter; the swapped-out contents are dispatched only when
// non-empty. Used on
// completion (the slave "flushes the issue buffer" before calling
// slave_done per spec.md §4.7) and by explicit callers.
func (b *Buffer) Flush(ctx context.Context) []issue.Issue {
	b.mu.Lock()
	flushed := b.items
	b.items = nil
	b.attempts = 0
	b.mu.Unlock()

	if len(flushed) > 0 {
		b.dispatchFlush(ctx, flushed)
	}
	return flushed
}

func (b *Buffer) dispatchFlush(ctx context.Context, flushed []issue.Issue) {
	// Submit blocks only long enough to hand the batch to the dispatcher's
	// internal queue; actual upstream delivery happens on its own goroutine,
	// bounded by MaxConcurrency.
	_, _ = b.dispatch.Submit(ctx, flushed)
}

// Len reports the number of currently buffered (not yet flushed) issues.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Close stops the underlying dispatcher, waiting for in-flight flushes to
// complete.
func (b *Buffer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.dispatch.Shutdown(ctx)
}
