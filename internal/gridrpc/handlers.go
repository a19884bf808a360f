package gridrpc

import (
	"context"

	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/token"
)

// Handlers is the full surface spec.md §6/§4.9 names: the public RPC
// surface plus the privileged master endpoints. An internal/coordinator
// Instance is the sole implementation; Server adapts it to HTTP+JSON,
// and Client is how a peer (or a test) calls it.
//
// Every privileged method (§4.9) takes a token.Token; implementations
// validate it themselves against their own LocalToken when role==master,
// and ignore it when role==slave (spec.md §4.9 preamble) — Handlers itself
// makes no assumption about which.
type Handlers interface {
	// Public surface, spec.md §6.
	Run(ctx context.Context) bool
	Pause(ctx context.Context) bool
	Resume(ctx context.Context) bool
	CleanUp(ctx context.Context) bool
	Busy(ctx context.Context) bool
	Status(ctx context.Context) string
	Stats(ctx context.Context) InstanceStats
	Progress(ctx context.Context, opts ProgressOptions) ProgressData
	Report(ctx context.Context) ([]byte, error)
	SerializedReport(ctx context.Context) ([]byte, error)
	ReportAs(ctx context.Context, name string) ([]byte, error)
	Issues(ctx context.Context) []issue.Issue
	IssuesAsHash(ctx context.Context) map[string]issue.Issue
	ListModules(ctx context.Context) []string
	ListPlugins(ctx context.Context) []string
	Version(ctx context.Context) string
	Revision(ctx context.Context) string
	Enslave(ctx context.Context, desc InstanceDescriptor) bool
	SetAsMaster(ctx context.Context) bool
	SetMaster(ctx context.Context, masterURL string, masterToken token.Token) bool
	IsMaster(ctx context.Context) bool
	IsSlave(ctx context.Context) bool
	IsSolo(ctx context.Context) bool
	SelfURL(ctx context.Context) string
	PublicToken(ctx context.Context) string

	// Privileged master endpoints, spec.md §4.9.
	RestrictToPaths(ctx context.Context, paths []string, tok token.Token) bool
	RestrictToElements(ctx context.Context, elementIDs []string, tok token.Token) bool
	UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, tok token.Token, signalDonePeerURL string) bool
	UpdatePageQueue(ctx context.Context, pages []sitemap.Page, tok token.Token) bool
	SlaveDone(ctx context.Context, slaveURL string, tok token.Token) bool
	RegisterIssues(ctx context.Context, issues []issue.Issue, tok token.Token) bool
	RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary, tok token.Token) bool
}
