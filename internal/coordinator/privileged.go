package coordinator

import (
	"context"

	"github.com/gridscan/hpg/internal/elements"
	"github.com/gridscan/hpg/internal/future"
	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/instance"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/progress"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/token"
)

var _ gridrpc.Handlers = (*Instance)(nil)

// Pause sets the local paused flag and fans out pause() to every enslaved
// slave (spec.md §4.6).
func (m *Instance) Pause(ctx context.Context) bool {
	m.role.Pause()
	m.fanOut(ctx, func(ctx context.Context, c gridrpc.Client) { _, _ = c.Pause(ctx) })
	return true
}

// Resume clears the local paused flag and fans out resume() to every
// enslaved slave.
func (m *Instance) Resume(ctx context.Context) bool {
	m.role.Resume()
	m.fanOut(ctx, func(ctx context.Context, c gridrpc.Client) { _, _ = c.Resume(ctx) })
	return true
}

// CleanUp fans out clean_up() to every slave, closes the issue buffer, and
// marks clean_up as having run (idempotent, spec.md §8 invariant 8).
func (m *Instance) CleanUp(ctx context.Context) bool {
	if !m.role.CleanUp() {
		return false
	}
	m.fanOut(ctx, func(ctx context.Context, c gridrpc.Client) { _, _ = c.CleanUp(ctx) })
	if m.issueBuf != nil {
		_ = m.issueBuf.Close()
	}
	return true
}

// Busy reports whether this instance's own run loop is still active;
// convergence (spec.md §4.2) is the caller observing busy==false on every
// grid member, not something a single Busy() call computes.
func (m *Instance) Busy(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extendedRunning
}

// Status reports the current RunState, overlaid with "paused" while the
// paused flag is set (spec.md §3/§6).
func (m *Instance) Status(ctx context.Context) string {
	if m.role.Paused() {
		return "paused"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.status)
}

// Progress answers progress(opts), merging the local view with every
// slave's when this instance is a master (spec.md §4.8).
func (m *Instance) Progress(ctx context.Context, opts gridrpc.ProgressOptions) gridrpc.ProgressData {
	local := gridrpc.ProgressData{
		Status: m.Status(ctx),
		Busy:   m.Busy(ctx),
	}
	if opts.Issues {
		m.mu.Lock()
		local.Issues = append([]issue.Summary(nil), m.summaries.List()...)
		m.mu.Unlock()
	}
	if opts.Stats {
		local.Stats = m.Stats(ctx)
	}

	if !m.role.IsMaster() || !opts.Slaves {
		return local
	}

	slaves := m.registry.List()
	peers := make([]progress.Peer, 0, len(slaves))
	for _, s := range slaves {
		peers = append(peers, m.cfg.NewClient(s.URL, token.Token(s.Token)))
	}
	return m.progressAgg.Aggregate(ctx, local, peers, opts)
}

// Enslave registers a newly spawned or explicitly supplied peer as a
// slave of this instance, per spec.md §4.6. A slave calling enslave is a
// role_violation; CanEnslave collapses that and "already a slave" into a
// single false (see DESIGN.md's Open Question 3 decision).
func (m *Instance) Enslave(ctx context.Context, desc gridrpc.InstanceDescriptor) bool {
	if err := desc.Validate(); err != nil {
		return false
	}
	if !m.role.CanEnslave() {
		return false
	}
	m.role.BecomeMaster()

	client := m.cfg.NewClient(desc.URL, token.Token(desc.Token))
	ok, err := client.SetMaster(ctx, m.cfg.SelfURL, m.guard.Local())
	if err != nil || !ok {
		m.log.Err().Err(err).Str("slave_url", desc.URL).Log("enslave: set_master failed")
		return false
	}
	m.registry.Add(instance.Instance{URL: desc.URL, Token: desc.Token})
	return true
}

// SetAsMaster elevates solo->master without enslaving anyone yet
// (spec.md §4.6).
func (m *Instance) SetAsMaster(ctx context.Context) bool {
	return m.role.BecomeMaster()
}

// SetMaster transitions solo->slave, attaching to masterURL/masterToken
// for privileged callbacks, and primes the audit pipeline (spec.md §4.6).
func (m *Instance) SetMaster(ctx context.Context, masterURL string, masterToken token.Token) bool {
	if !m.role.BecomeSlave(instance.Instance{URL: masterURL}, masterToken) {
		return false
	}
	m.mu.Lock()
	m.elementFilter = elements.NewDefaultFilter()
	m.mu.Unlock()
	m.masterClient = m.cfg.NewClient(masterURL, masterToken)
	m.prepare(ctx)
	return true
}

func (m *Instance) IsMaster(ctx context.Context) bool { return m.role.IsMaster() }
func (m *Instance) IsSlave(ctx context.Context) bool  { return m.role.IsSlave() }
func (m *Instance) IsSolo(ctx context.Context) bool   { return m.role.IsSolo() }

func (m *Instance) SelfURL(ctx context.Context) string     { return m.cfg.SelfURL }
func (m *Instance) PublicToken(ctx context.Context) string { return string(m.cfg.PublicToken) }

// authorized gates a privileged call: a master validates tok against its
// own LocalToken, a slave accepts unconditionally (spec.md §4.9 preamble:
// "no external peers" call a slave's privileged surface except its one
// master, which is implicitly trusted).
func (m *Instance) authorized(tok token.Token) bool {
	if !m.role.IsMaster() {
		return true
	}
	return m.guard.Validate(tok)
}

// RestrictToPaths sets this instance's assigned URL-chunk scope for the
// upcoming audit (spec.md §4.7.f/§4.9).
func (m *Instance) RestrictToPaths(ctx context.Context, paths []string, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	m.mu.Lock()
	m.restrictPaths = paths
	m.mu.Unlock()
	return true
}

// RestrictToElements sets this instance's assigned element-id scope for
// the upcoming audit (spec.md §4.9).
func (m *Instance) RestrictToElements(ctx context.Context, elementIDs []string, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	m.mu.Lock()
	m.restrictElements = elementIDs
	m.mu.Unlock()
	return true
}

// UpdateElementIDsPerPage merges discovered element ids into the local
// ElementIdMap and, if signalDonePeerURL is set, tells the Spider that
// peer has finished crawling its share (spec.md §4.9).
func (m *Instance) UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, tok token.Token, signalDonePeerURL string) bool {
	if !m.authorized(tok) {
		return false
	}
	for url, ids := range idsByURL {
		m.elementMap.Record(url, ids)
	}
	if signalDonePeerURL != "" && m.cfg.Spider != nil {
		m.cfg.Spider.SignalPeerDone(signalDonePeerURL)
	}
	return true
}

// UpdatePageQueue appends pages to this instance's PageQueue (spec.md
// §4.9).
func (m *Instance) UpdatePageQueue(ctx context.Context, pages []sitemap.Page, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	for _, p := range pages {
		m.pageQueue.Push(p)
	}
	return true
}

// SlaveDone marks slaveURL as finished in the Instance Registry and, if
// that completes the grid, triggers clean_up (spec.md §4.9).
func (m *Instance) SlaveDone(ctx context.Context, slaveURL string, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	m.registry.MarkDone(slaveURL)
	m.cleanupIfAllDone(ctx)
	return true
}

// RegisterIssues stores issues into this instance's full issue store
// (spec.md §4.9) — the receiving side of a slave's issue buffer flush.
func (m *Instance) RegisterIssues(ctx context.Context, issues []issue.Issue, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	m.appendIssuesLocally(issues)
	return true
}

// RegisterIssueSummaries merges summaries into the summary set without
// storing the full Issue values (spec.md §4.9).
func (m *Instance) RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary, tok token.Token) bool {
	if !m.authorized(tok) {
		return false
	}
	m.mu.Lock()
	m.summaries.Merge(summaries...)
	m.mu.Unlock()
	return true
}

// fanOut runs fn against a gridrpc.Client for every enslaved slave,
// bounded by MaxSlaveConcurrency. Errors are deliberately not collected:
// pause/resume/clean_up fanout is best-effort per spec.md §7's
// transport-error tolerance policy.
func (m *Instance) fanOut(ctx context.Context, fn func(context.Context, gridrpc.Client)) {
	if !m.role.IsMaster() {
		return
	}
	slaves := m.registry.List()
	_ = future.MapEachTolerant(ctx, slaves, m.cfg.MaxSlaveConcurrency, func(ctx context.Context, s instance.Instance) (struct{}, error) {
		fn(ctx, m.cfg.NewClient(s.URL, token.Token(s.Token)))
		return struct{}{}, nil
	})
}
