package coordinator

import (
	"context"
	"time"

	"github.com/gridscan/hpg/internal/future"
	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/instance"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/partition"
	"github.com/gridscan/hpg/internal/role"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/spider"
	"github.com/gridscan/hpg/internal/token"
)

// Run starts the run loop appropriate to the current Role, spec.md §4.7.
// A second call while already running is a no-op false (spec.md §8
// invariant 8).
func (m *Instance) Run(ctx context.Context) bool {
	m.mu.Lock()
	if m.extendedRunning {
		m.mu.Unlock()
		return false
	}
	m.extendedRunning = true
	m.status = StatePreparing
	m.mu.Unlock()

	m.prepare(ctx)

	switch m.role.Kind() {
	case role.Slave:
		go m.runSlave(ctx)
	case role.Master:
		go m.runMaster(ctx)
	default:
		go m.runSolo(ctx)
	}
	return true
}

// waitWhilePaused blocks the calling run loop at its suspension point
// while paused() is true, polling per spec.md §5 rather than using a
// condition variable, so Resume needs no special wakeup path.
func (m *Instance) waitWhilePaused(ctx context.Context) {
	for m.role.Paused() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// runSolo audits the entire crawl locally, with no grid fan-out at all
// (spec.md §4.7's simplification for the Solo variant).
func (m *Instance) runSolo(ctx context.Context) {
	m.waitWhilePaused(ctx)
	m.setStatus(StateAuditing)

	issues, err := m.cfg.Auditor.Audit(ctx, Scope{})
	if err != nil {
		m.log.Err().Err(err).Log("solo audit failed")
	}
	m.appendIssuesLocally(issues)

	m.finishAudit(ctx)
}

// runSlave audits this instance's assigned scope (set earlier via
// restrict_to_elements/update_page_queue), flushes its issue buffer
// upstream, and reports slave_done (spec.md §4.7's slave-side run).
func (m *Instance) runSlave(ctx context.Context) {
	m.waitWhilePaused(ctx)
	m.setStatus(StateAuditing)

	m.mu.Lock()
	scope := Scope{
		Paths:    append([]string(nil), m.restrictPaths...),
		Elements: append([]string(nil), m.restrictElements...),
	}
	m.mu.Unlock()

	issues, err := m.cfg.Auditor.Audit(ctx, scope)
	if err != nil {
		m.log.Err().Err(err).Log("slave audit failed")
	}
	m.reportExercisedElements(ctx, issues)
	m.issueBuf.Push(ctx, issues)
	m.issueBuf.Flush(ctx)

	if m.masterClient != nil {
		if _, err := m.masterClient.SlaveDone(ctx, m.cfg.SelfURL); err != nil {
			m.log.Err().Err(err).Log("slave_done failed")
		}
	}

	m.finishAudit(ctx)
}

// reportExercisedElements tells the master which element ids this
// audit actually exercised, deduplicated through the slave's
// ElementIdFilter (spec.md §4.3/§4.9) so a slave never re-announces an
// id it has already forwarded upstream.
func (m *Instance) reportExercisedElements(ctx context.Context, issues []issue.Issue) {
	m.mu.Lock()
	filter := m.elementFilter
	m.mu.Unlock()
	if filter == nil || m.masterClient == nil {
		return
	}

	byURL := make(map[string][]string)
	for _, iss := range issues {
		ids := make([]string, 0, 1+len(iss.Variations))
		ids = append(ids, iss.ElementID)
		for _, v := range iss.Variations {
			ids = append(ids, v.ElementID)
		}
		fresh := filter.Apply(ids)
		if len(fresh) > 0 {
			byURL[iss.URL] = append(byURL[iss.URL], fresh...)
		}
	}
	if len(byURL) == 0 {
		return
	}
	if _, err := m.masterClient.UpdateElementIDsPerPage(ctx, byURL, ""); err != nil {
		m.log.Err().Err(err).Log("report exercised elements failed")
	}
}

// slaveWork pairs one enslaved Instance with the chunk distribute_and_run
// must push to it.
type slaveWork struct {
	slave instance.Instance
	urls  []string
	elems []string
	pages []sitemap.Page
}

// runMaster is the Grid Orchestrator run loop (spec.md §4.7): spawn
// preferred dispatchers, crawl, partition the crawl N ways (N = slaves+1),
// distribute chunks and start every slave, then audit the master's own
// chunk locally.
func (m *Instance) runMaster(ctx context.Context) {
	m.waitWhilePaused(ctx)

	if m.cfg.Dispatchers != nil {
		m.spawnDispatchers(ctx)
	}

	m.waitWhilePaused(ctx)
	m.setStatus(StateCrawling)
	m.crawl(ctx)

	m.waitWhilePaused(ctx)
	m.setStatus(StateDistributing)
	result := m.distribute(ctx)

	slaves := m.registry.List()
	work := make([]slaveWork, len(slaves))
	for i, s := range slaves {
		work[i] = slaveWork{slave: s, urls: result.URLChunks[i], elems: result.ElementChunks[i], pages: result.PageChunks[i]}
	}
	_, _ = future.MapEach(ctx, work, m.cfg.MaxSlaveConcurrency, func(ctx context.Context, w slaveWork) (bool, error) {
		return m.distributeAndRun(ctx, w)
	})

	masterIdx := len(slaves)
	m.mu.Lock()
	m.restrictPaths = result.URLChunks[masterIdx]
	m.restrictElements = result.ElementChunks[masterIdx]
	m.mu.Unlock()
	for _, p := range result.PageChunks[masterIdx] {
		m.pageQueue.Push(p)
	}

	m.waitWhilePaused(ctx)
	m.setStatus(StateAuditing)
	issues, err := m.cfg.Auditor.Audit(ctx, Scope{Paths: result.URLChunks[masterIdx], Elements: result.ElementChunks[masterIdx]})
	if err != nil {
		m.log.Err().Err(err).Log("master local audit failed")
	}
	m.appendIssuesLocally(issues)

	m.finishAudit(ctx)
}

// spawnDispatchers resolves the preferred dispatcher pool and enslaves
// whatever each one spawns, spec.md §4.7.b/c. A dispatcher that fails to
// spawn is logged and skipped; it never aborts the rest of the run.
func (m *Instance) spawnDispatchers(ctx context.Context) {
	dispatchers, err := m.cfg.Dispatchers.Preferred(ctx)
	if err != nil {
		m.log.Err().Err(err).Log("resolve preferred dispatchers failed")
		return
	}
	for _, d := range dispatchers {
		desc, err := d.Spawn(ctx)
		if err != nil {
			m.log.Err().Err(err).Str("pipe_id", d.PipeID()).Log("spawn slave failed")
			continue
		}
		if !m.Enslave(ctx, desc) {
			m.log.Err().Str("pipe_id", d.PipeID()).Str("slave_url", desc.URL).Log("enslave failed after spawn")
		}
	}
}

// finishAudit records local completion and triggers clean_up once every
// enslaved instance has also reported done (spec.md §4.2's busy==false
// convergence signal).
func (m *Instance) finishAudit(ctx context.Context) {
	m.mu.Lock()
	m.finishedAuditing = true
	m.mu.Unlock()
	m.cleanupIfAllDone(ctx)
}

func (m *Instance) cleanupIfAllDone(ctx context.Context) {
	m.mu.Lock()
	finished := m.finishedAuditing
	m.mu.Unlock()
	if !finished || !m.registry.AllDone() {
		return
	}
	m.CleanUp(ctx)
	m.mu.Lock()
	m.status = StateDone
	m.extendedRunning = false
	m.mu.Unlock()
}

// crawl drains the Spider's event channel, recording every crawled page
// into the element map and local sitemap (spec.md §4.7 steps c/d).
func (m *Instance) crawl(ctx context.Context) {
	if m.cfg.Spider == nil {
		return
	}
	events := m.cfg.Spider.Start(ctx, m.cfg.Target)
	for ev := range events {
		if ev.Kind == spider.EventPage {
			m.elementMap.Record(ev.Page.URL, ev.Page.Elements)
			m.localSitemap.Add(ev.Page.URL)
		}
	}
}

// distribute freezes the crawl result (override_sitemap := local_sitemap
// plus anything plugins pushed directly onto the page queue) and runs the
// Workload Partitioner over it, spec.md §4.7 steps e/f.
func (m *Instance) distribute(ctx context.Context) partition.Result {
	pages := m.pageQueue.Drain()
	for _, p := range pages {
		m.elementMap.Record(p.URL, p.Elements)
		m.overrideSitemap.Add(p.URL)
	}
	for _, u := range m.localSitemap.URLs() {
		m.overrideSitemap.Add(u)
	}

	slaves := m.registry.List()
	n := len(slaves) + 1

	peerURLs := make([]string, 0, len(slaves))
	for _, s := range slaves {
		peerURLs = append(peerURLs, s.URL)
	}
	if m.cfg.Spider != nil {
		m.cfg.Spider.BroadcastPeers(peerURLs)
	}

	return partition.Partition(m.overrideSitemap.URLs(), m.elementMap.Snapshot(), pages, n)
}

// distributeAndRun wraps the slave RPC calls distribute_and_run performs
// per spec.md §4.7.g: push the slave's URL, element, and page chunks,
// then start it. Once running, watchSlaveLiveness starts the per-instance
// dead-slave deadline (spec.md §9 open question 1).
func (m *Instance) distributeAndRun(ctx context.Context, w slaveWork) (bool, error) {
	client := m.cfg.NewClient(w.slave.URL, token.Token(w.slave.Token))
	if _, err := client.RestrictToPaths(ctx, w.urls); err != nil {
		return false, err
	}
	if _, err := client.RestrictToElements(ctx, w.elems); err != nil {
		return false, err
	}
	if _, err := client.UpdatePageQueue(ctx, w.pages); err != nil {
		return false, err
	}
	ok, err := client.Run(ctx)
	if err != nil || !ok {
		return ok, err
	}
	go m.watchSlaveLiveness(ctx, w.slave.URL, client)
	return ok, nil
}

// watchSlaveLiveness implements the dead-slave liveness deadline (spec.md
// §9 open question 1): wait SlaveLivenessDeadline for slave_done; if it
// hasn't arrived, probe the slave once with progress. If the probe also
// fails, fold the slave into done_slaves anyway so the grid can still
// converge. Single-shot: never retried, logged at warning level.
func (m *Instance) watchSlaveLiveness(ctx context.Context, url string, client gridrpc.Client) {
	deadline := m.cfg.SlaveLivenessDeadline
	if deadline <= 0 {
		deadline = defaultSlaveLivenessDeadline
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(deadline):
	}
	if m.registry.Done(url) {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, livenessProbeTimeout)
	_, err := client.Progress(probeCtx, gridrpc.ProgressOptions{})
	cancel()
	if err == nil {
		return
	}

	m.log.Warning().Str("slave_url", url).Err(err).Log("slave missed liveness deadline and failed progress probe; folding into done_slaves")
	m.registry.MarkDone(url)
	m.cleanupIfAllDone(ctx)
}
