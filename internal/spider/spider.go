// Package spider specifies the crawler external collaborator (spec.md
// §1/§9): a stream of {Page, RunComplete, CrawlComplete} events the
// coordinator consumes instead of installing per-page callbacks, the
// channel-based reading of the source's on_each_page/on_complete/
// after_each_run inversion-of-control.
package spider

import (
	"context"

	"github.com/gridscan/hpg/internal/sitemap"
)

// EventKind distinguishes the three event shapes a Spider emits.
type EventKind int

const (
	// EventPage carries one crawled page, emitted per on_each_page.
	EventPage EventKind = iota
	// EventRunComplete marks one crawl run finished (after_each_run).
	EventRunComplete
	// EventCrawlComplete marks the whole crawl finished (on_complete).
	EventCrawlComplete
)

// Event is one item on the channel a Spider's Start returns.
type Event struct {
	Kind EventKind
	Page sitemap.Page
}

// Spider is the crawler external collaborator. Start begins crawling
// target and returns a channel of Events, closed when the crawl
// terminates (after the final EventCrawlComplete).
type Spider interface {
	// Start begins crawling target, emitting Events until ctx is
	// cancelled or the crawl completes.
	Start(ctx context.Context, target string) <-chan Event

	// BroadcastPeers informs the spider of the other instances
	// participating in a distributed crawl (spec.md §4.7.h), so it can
	// avoid re-fetching URLs peers already claimed.
	BroadcastPeers(peers []string)

	// SignalPeerDone tells the spider that the instance at peerURL has
	// finished crawling its share (spec.md §4.9's
	// update_element_ids_per_page signal_done_peer_url).
	SignalPeerDone(peerURL string)
}
