package spider_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/spider"
)

// fakeSpider is a minimal Spider for this package's tests: it emits a
// fixed page list then completes, and records peer broadcasts and
// peer-done signals.
type fakeSpider struct {
	pages []sitemap.Page
	peers []string
	done  []string
}

func newFakeSpider(pages ...sitemap.Page) *fakeSpider {
	return &fakeSpider{pages: pages}
}

func (f *fakeSpider) Start(ctx context.Context, target string) <-chan spider.Event {
	out := make(chan spider.Event, len(f.pages)+2)
	for _, p := range f.pages {
		out <- spider.Event{Kind: spider.EventPage, Page: p}
	}
	out <- spider.Event{Kind: spider.EventRunComplete}
	out <- spider.Event{Kind: spider.EventCrawlComplete}
	close(out)
	return out
}

func (f *fakeSpider) BroadcastPeers(peers []string) { f.peers = peers }

func (f *fakeSpider) SignalPeerDone(peerURL string) { f.done = append(f.done, peerURL) }

var _ spider.Spider = (*fakeSpider)(nil)

func TestFakeSpider_emitsPagesThenCompletes(t *testing.T) {
	s := newFakeSpider(sitemap.Page{URL: "http://a", Elements: []string{"e1"}})
	var events []spider.Event
	for ev := range s.Start(context.Background(), "http://a") {
		events = append(events, ev)
	}
	require.Len(t, events, 3)
	require.Equal(t, spider.EventPage, events[0].Kind)
	require.Equal(t, spider.EventRunComplete, events[1].Kind)
	require.Equal(t, spider.EventCrawlComplete, events[2].Kind)
}

func TestFakeSpider_broadcastAndSignal(t *testing.T) {
	s := newFakeSpider()
	s.BroadcastPeers([]string{"http://s1", "http://s2"})
	s.SignalPeerDone("http://s1")
	require.Equal(t, []string{"http://s1", "http://s2"}, s.peers)
	require.Equal(t, []string{"http://s1"}, s.done)
}
