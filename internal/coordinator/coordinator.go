// Package coordinator wires every other internal/ package into the
// gridrpc.Handlers surface: Instance is the aggregate spec.md §2 calls out
// as "the master-side run loop" plus its slave and solo counterparts,
// built from the Role State Machine, Instance Registry, Element
// Deduplicator, Workload Partitioner, Issue Buffer, and Progress
// Aggregator.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/gridscan/hpg/internal/dispatcher"
	"github.com/gridscan/hpg/internal/elements"
	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/instance"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/issuebuf"
	"github.com/gridscan/hpg/internal/logging"
	"github.com/gridscan/hpg/internal/progress"
	"github.com/gridscan/hpg/internal/report"
	"github.com/gridscan/hpg/internal/role"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/spider"
	"github.com/gridscan/hpg/internal/token"

	"github.com/joeycumines/logiface"
)

// Scope restricts an Auditor run to a subset of the crawl (spec.md §4.7.f:
// the URL/element chunk this instance was assigned).
type Scope struct {
	Paths    []string
	Elements []elements.ID
}

// Auditor is the local (non-grid) audit pipeline spec.md §1 says is
// "assumed to exist": plugin loading and execution against one Scope.
// Out of scope for this package beyond the interface it's invoked through.
type Auditor interface {
	// Prepare runs once per instance before any audit, loading plugins
	// and starting whatever timers the audit pipeline needs.
	Prepare(ctx context.Context) error
	// Audit runs the loaded plugins against scope, returning every Issue
	// found.
	Audit(ctx context.Context, scope Scope) ([]issue.Issue, error)
	ListModules() []string
	ListPlugins() []string
}

// RunState is the coordination-layer status, spec.md §3's RunState
// enumeration.
type RunState string

const (
	StateNotStarted    RunState = "not_started"
	StatePreparing     RunState = "preparing"
	StateCrawling      RunState = "crawling"
	StateDistributing  RunState = "distributing"
	StateAuditing      RunState = "auditing"
	StateCleaningUp    RunState = "cleaning_up"
	StateDone          RunState = "done"
)

// Config bundles everything an Instance needs from outside the
// coordination layer: its own identity, the external collaborators
// (spec.md §1), and tuning knobs.
type Config struct {
	SelfURL string
	// PublicToken is returned by the public token() RPC and embedded as
	// this instance's identity in its InstanceDescriptor when it is
	// enslaved. It carries no privileged authority.
	PublicToken token.Token
	// PrivToken guards every privileged call while this instance is a
	// master (spec.md §4.9); it is the LocalToken token.go's own doc
	// comment says is "never exposed over the public RPC surface" —
	// kept distinct from PublicToken so that guarantee actually holds.
	PrivToken token.Token
	// Target is the scan target URL propagated to slaves (spec.md §6
	// config key "url").
	Target string

	// InitialRestrictPaths seeds restrictPaths before the first
	// distribute() round runs (spec.md §6's "restrict_paths" config key);
	// a master overwrites it with its own computed URL chunk once
	// partitioning completes.
	InitialRestrictPaths []string

	Auditor     Auditor
	Spider      spider.Spider
	Dispatchers dispatcher.Pool

	// ReportGenerator renders report()/report_as() output (spec.md §6's
	// Report Output section). nil means report/report_as fail with
	// component_not_found; serialized_report doesn't need it.
	ReportGenerator report.Generator

	// NewClient builds a gridrpc.Client for the peer at url, gated with
	// tok. Every outbound RPC in this package goes through it, so tests
	// can substitute gridrpc.NewInProcClient for a real HTTPClient.
	NewClient func(url string, tok token.Token) gridrpc.Client

	// MaxSlaveConcurrency bounds fan-out concurrency across slaves
	// (distribute_and_run, pause/resume/clean_up fanout, progress
	// aggregation). <=0 means unbounded.
	MaxSlaveConcurrency int

	// SlaveLivenessDeadline bounds how long a master waits for slave_done
	// from one dispatched slave before probing it and, if that probe also
	// fails, folding it into done_slaves anyway (spec.md §9 open question
	// 1). <=0 uses defaultSlaveLivenessDeadline.
	SlaveLivenessDeadline time.Duration
}

// defaultSlaveLivenessDeadline and livenessProbeTimeout are the dead-slave
// liveness deadline's default tuning (spec.md §9 open question 1): how long
// to wait for slave_done before treating silence as suspicious, and how
// long the confirming progress probe itself gets.
const (
	defaultSlaveLivenessDeadline = 2 * time.Minute
	livenessProbeTimeout         = 5 * time.Second
)

// Instance is the aggregate C1-C8 component wiring: one running scanner
// process participating in a scan, whatever its current Role.
type Instance struct {
	mu sync.Mutex

	cfg   Config
	guard *token.Guard
	log   *logiface.Logger[logiface.Event]

	role          *role.Machine
	registry      *instance.Registry
	elementMap    *elements.Map
	elementFilter *elements.Filter
	localSitemap  *sitemap.Sitemap
	overrideSitemap *sitemap.Sitemap
	pageQueue     *sitemap.PageQueue
	issueBuf      *issuebuf.Buffer
	summaries     *issue.SummarySet
	progressAgg   *progress.Aggregator

	masterIssues []issue.Issue
	masterClient gridrpc.Client

	status           RunState
	extendedRunning  bool
	finishedAuditing bool
	restrictElements []elements.ID
	restrictPaths    []string

	prepareOnce sync.Once
}

// New constructs an Instance in the initial Solo state.
func New(cfg Config) *Instance {
	m := &Instance{
		cfg:             cfg,
		guard:           token.NewGuard(cfg.PrivToken),
		log:             logging.Named("coordinator"),
		role:            role.NewMachine(),
		registry:        instance.NewRegistry(),
		elementMap:      elements.NewMap(),
		localSitemap:    sitemap.New(),
		overrideSitemap: sitemap.New(),
		pageQueue:       sitemap.NewPageQueue(),
		summaries:       issue.NewSummarySet(),
		progressAgg:     progress.NewAggregator(cfg.MaxSlaveConcurrency, 2*time.Second, 5),
		status:          StateNotStarted,
		restrictPaths:   append([]string(nil), cfg.InitialRestrictPaths...),
	}
	m.issueBuf = issuebuf.New(m.flushIssuesUpstream, max(cfg.MaxSlaveConcurrency, 1))
	return m
}

// Issues returns a snapshot of every full Issue registered so far,
// spec.md §6's "issues" public surface.
func (m *Instance) Issues(ctx context.Context) []issue.Issue {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]issue.Issue, len(m.masterIssues))
	copy(out, m.masterIssues)
	return out
}

// ListModules and ListPlugins pass through to the Auditor, spec.md §6.
func (m *Instance) ListModules(ctx context.Context) []string {
	if m.cfg.Auditor == nil {
		return nil
	}
	return m.cfg.Auditor.ListModules()
}

func (m *Instance) ListPlugins(ctx context.Context) []string {
	if m.cfg.Auditor == nil {
		return nil
	}
	return m.cfg.Auditor.ListPlugins()
}

// SetReportGenerator plugs in the report.Generator after construction, for
// callers whose Generator needs a reference back to this Instance (e.g. one
// that renders from Issues) and so can't be built before New returns.
func (m *Instance) SetReportGenerator(gen report.Generator) {
	m.mu.Lock()
	m.cfg.ReportGenerator = gen
	m.mu.Unlock()
}

func (m *Instance) setStatus(s RunState) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Instance) appendIssuesLocally(issues []issue.Issue) {
	if len(issues) == 0 {
		return
	}
	m.mu.Lock()
	m.masterIssues = issue.MergeIssues(m.masterIssues, issues...)
	m.mu.Unlock()

	summaries := make([]issue.Summary, len(issues))
	for i, iss := range issues {
		summaries[i] = iss.Strip()
	}
	m.mu.Lock()
	m.summaries.Merge(summaries...)
	m.mu.Unlock()
}

// flushIssuesUpstream is the issuebuf.Sink: a slave forwards flushed
// batches to its master via register_issues; a solo or master instance
// already is the issue store, so it just appends locally (spec.md §4.5's
// rationale applies only to the network hop, which a local instance
// doesn't have).
func (m *Instance) flushIssuesUpstream(ctx context.Context, batch []issue.Issue) error {
	if m.role.IsSlave() {
		if m.masterClient == nil {
			return nil
		}
		_, err := m.masterClient.RegisterIssues(ctx, batch)
		return err
	}
	m.appendIssuesLocally(batch)
	return nil
}

func (m *Instance) prepare(ctx context.Context) {
	m.prepareOnce.Do(func() {
		if m.cfg.Auditor == nil {
			return
		}
		if err := m.cfg.Auditor.Prepare(ctx); err != nil {
			m.log.Err().Err(err).Log("auditor prepare failed")
		}
	})
}
