// Package progress implements the Progress Aggregator (spec.md §4.8):
// fan out progress/stats queries to every slave and merge the responses
// with the local view. Fan-out concurrency is bounded with
// golang.org/x/sync/errgroup, per-peer polling is throttled with
// joeycumines-go-utilpkg's go-catrate sliding-window limiter (so a flaky
// or overwhelmed slave doesn't get hit on every single progress() call),
// and partial results are collected with go-longpoll's Channel helper,
// which is built exactly for "wait for most of these, but don't block
// forever on stragglers" — the dead-slave tolerance spec.md §7 and §9
// open question 1 call for.
package progress

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-longpoll"

	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/issue"
)

// Peer is the subset of gridrpc.Client the Aggregator needs from a slave.
type Peer interface {
	SelfURL(ctx context.Context) (string, error)
	Progress(ctx context.Context, opts gridrpc.ProgressOptions) (gridrpc.ProgressData, error)
}

// Aggregator fans out progress() to a set of slave peers and merges the
// results with a locally-supplied view, per spec.md §4.8's merge rules.
type Aggregator struct {
	// MaxConcurrency bounds simultaneous in-flight peer calls; <=0 means
	// unbounded.
	MaxConcurrency int
	// PartialTimeout bounds how long to wait for slow peers once at
	// least one has responded, before giving up on the rest — the
	// deadline spec.md §9 open question 1 asks implementers to add.
	PartialTimeout time.Duration

	limiter *catrate.Limiter
}

// NewAggregator builds an Aggregator that polls any one peer at most
// pollsPerSecond times per second, smoothing bursts from callers hammering
// progress() in a tight loop.
func NewAggregator(maxConcurrency int, partialTimeout time.Duration, pollsPerSecond int) *Aggregator {
	if pollsPerSecond <= 0 {
		pollsPerSecond = 5
	}
	return &Aggregator{
		MaxConcurrency: maxConcurrency,
		PartialTimeout: partialTimeout,
		limiter:        catrate.NewLimiter(map[time.Duration]int{time.Second: pollsPerSecond}),
	}
}

// peerResult is one slave's progress response, tagged with the URL it
// came from (needed for the per-instance sort, spec.md §6).
type peerResult struct {
	url  string
	data gridrpc.ProgressData
}

// Aggregate merges local with progress fetched from every peer, spec.md
// §4.8. Peers that are rate-limited, error, or don't respond within
// PartialTimeout are silently dropped from the result — "nil-compacted",
// per spec.md §7's transport-error propagation policy.
func (a *Aggregator) Aggregate(ctx context.Context, local gridrpc.ProgressData, peers []Peer, opts gridrpc.ProgressOptions) gridrpc.ProgressData {
	resultsCh := make(chan peerResult, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	if a.MaxConcurrency > 0 {
		g.SetLimit(a.MaxConcurrency)
	}

	for _, p := range peers {
		p := p
		g.Go(func() error {
			url, err := p.SelfURL(gctx)
			if err != nil {
				return nil //nolint:nilerr // dropped peer, not a fatal aggregation error
			}
			if a.limiter != nil {
				if _, ok := a.limiter.Allow(url); !ok {
					return nil
				}
			}
			data, err := p.Progress(gctx, opts)
			if err != nil {
				return nil //nolint:nilerr // dropped peer
			}
			resultsCh <- peerResult{url: url, data: data}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(resultsCh)
	}()

	partial := a.PartialTimeout
	if partial <= 0 {
		partial = 2 * time.Second
	}

	var collected []peerResult
	pollCtx, cancel := context.WithTimeout(ctx, partial+time.Second)
	defer cancel()
	_ = longpoll.Channel(pollCtx, &longpoll.ChannelConfig{
		MaxSize:        len(peers),
		MinSize:        -1,
		PartialTimeout: partial,
	}, resultsCh, func(r peerResult) error {
		collected = append(collected, r)
		return nil
	})
	// longpoll.Channel's error (io.EOF once the channel drains, or a
	// context deadline) is expected here, not an aggregation failure;
	// only the collected slice matters from this point.

	return merge(local, collected, opts)
}

func merge(local gridrpc.ProgressData, peers []peerResult, opts gridrpc.ProgressOptions) gridrpc.ProgressData {
	out := gridrpc.ProgressData{
		Status: local.Status,
		Busy:   local.Busy,
	}

	if opts.Messages {
		out.Messages = append(out.Messages, local.Messages...)
		for _, p := range peers {
			out.Messages = append(out.Messages, p.data.Messages...)
		}
	}

	if opts.Issues {
		summaries := issue.NewSummarySet()
		summaries.Merge(local.Issues...)
		for _, p := range peers {
			summaries.Merge(p.data.Issues...)
		}
		out.Issues = summaries.List()
		sort.Slice(out.Issues, func(i, j int) bool { return out.Issues[i].UniqueID < out.Issues[j].UniqueID })
	}

	if opts.Stats {
		out.Stats = local.Stats
	}

	if opts.Slaves {
		instances := make([]gridrpc.InstanceProgress, 0, len(peers))
		for _, p := range peers {
			inst := gridrpc.InstanceProgress{URL: p.url, Status: p.data.Status, Busy: p.data.Busy}
			if opts.Stats {
				inst.Stats = p.data.Stats
			}
			instances = append(instances, inst)
			out.Busy = out.Busy || p.data.Busy
		}
		sort.Slice(instances, func(i, j int) bool { return instances[i].URL < instances[j].URL })
		out.Instances = instances
	} else {
		for _, p := range peers {
			out.Busy = out.Busy || p.data.Busy
		}
	}

	return out
}
