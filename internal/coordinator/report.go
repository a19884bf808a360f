package coordinator

import (
	"context"
	"encoding/json"

	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/report"
)

// defaultReportName is the format report() renders when the caller doesn't
// name one explicitly, spec.md §6's "report" operation.
const defaultReportName = "default"

// Report renders the default report format, spec.md §6.
func (m *Instance) Report(ctx context.Context) ([]byte, error) {
	return m.ReportAs(ctx, defaultReportName)
}

// ReportAs renders report format name via the configured report.Generator,
// spec.md §6's Report Output section (temp-file lifecycle owned by
// internal/report).
func (m *Instance) ReportAs(ctx context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	gen := m.cfg.ReportGenerator
	m.mu.Unlock()
	if gen == nil {
		return nil, gridrpc.New(gridrpc.ComponentNotFound, "report %q: no report generator configured", name)
	}
	return report.As(ctx, gen, name)
}

// SerializedReport returns the current full issue set JSON-encoded,
// bypassing the report.Generator/temp-file path entirely (spec.md §6: a
// quick RPC-only dump distinct from the rendered report() formats).
func (m *Instance) SerializedReport(ctx context.Context) ([]byte, error) {
	return json.Marshal(m.Issues(ctx))
}

// IssuesAsHash returns every Issue keyed by its UniqueID, spec.md §6's
// "issues_as_hash" operation.
func (m *Instance) IssuesAsHash(ctx context.Context) map[string]issue.Issue {
	issues := m.Issues(ctx)
	out := make(map[string]issue.Issue, len(issues))
	for _, iss := range issues {
		out[iss.UniqueID] = iss
	}
	return out
}

// Stats answers the standalone stats() RPC, spec.md §6 — the same
// registered/done slave counters progress(opts={stats:true}) embeds.
func (m *Instance) Stats(ctx context.Context) gridrpc.InstanceStats {
	return gridrpc.InstanceStats{
		"registered_slaves": m.registry.Len(),
		"done_slaves":       m.registry.DoneCount(),
	}
}

// Version and Revision are build-time metadata, spec.md §6's "version" and
// "revision" operations; overridden via -ldflags at build time.
var (
	Version  = "dev"
	Revision = "unknown"
)

func (m *Instance) Version(ctx context.Context) string  { return Version }
func (m *Instance) Revision(ctx context.Context) string { return Revision }
