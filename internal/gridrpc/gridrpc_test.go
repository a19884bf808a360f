package gridrpc_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/token"
)

// fakeHandlers is a minimal, in-memory Handlers implementation used to
// exercise Server/HTTPClient/InProcClient without a coordinator.Instance.
type fakeHandlers struct {
	tok           token.Token
	status        string
	pages         []sitemap.Page
	issues        []issue.Issue
	restrict      []string
	restrictPaths []string
}

func (f *fakeHandlers) Run(ctx context.Context) bool     { return true }
func (f *fakeHandlers) Pause(ctx context.Context) bool   { return true }
func (f *fakeHandlers) Resume(ctx context.Context) bool  { return true }
func (f *fakeHandlers) CleanUp(ctx context.Context) bool { return true }
func (f *fakeHandlers) Busy(ctx context.Context) bool    { return false }
func (f *fakeHandlers) Status(ctx context.Context) string {
	if f.status == "" {
		return "idle"
	}
	return f.status
}
func (f *fakeHandlers) Stats(ctx context.Context) gridrpc.InstanceStats {
	return gridrpc.InstanceStats{"issues": len(f.issues)}
}
func (f *fakeHandlers) Progress(ctx context.Context, opts gridrpc.ProgressOptions) gridrpc.ProgressData {
	return gridrpc.ProgressData{Status: f.Status(ctx), Busy: f.Busy(ctx)}
}
func (f *fakeHandlers) Report(ctx context.Context) ([]byte, error) { return []byte("report"), nil }
func (f *fakeHandlers) SerializedReport(ctx context.Context) ([]byte, error) {
	return []byte("serialized"), nil
}
func (f *fakeHandlers) ReportAs(ctx context.Context, name string) ([]byte, error) {
	return []byte("report-as-" + name), nil
}
func (f *fakeHandlers) Issues(ctx context.Context) []issue.Issue { return f.issues }
func (f *fakeHandlers) IssuesAsHash(ctx context.Context) map[string]issue.Issue {
	out := make(map[string]issue.Issue, len(f.issues))
	for _, iss := range f.issues {
		out[iss.UniqueID] = iss
	}
	return out
}
func (f *fakeHandlers) ListModules(ctx context.Context) []string { return []string{"xss"} }
func (f *fakeHandlers) ListPlugins(ctx context.Context) []string { return []string{"form_crawler"} }
func (f *fakeHandlers) Version(ctx context.Context) string       { return "test-version" }
func (f *fakeHandlers) Revision(ctx context.Context) string      { return "test-revision" }
func (f *fakeHandlers) Enslave(ctx context.Context, desc gridrpc.InstanceDescriptor) bool { return true }
func (f *fakeHandlers) SetAsMaster(ctx context.Context) bool                             { return true }
func (f *fakeHandlers) SetMaster(ctx context.Context, masterURL string, masterToken token.Token) bool {
	return true
}
func (f *fakeHandlers) IsMaster(ctx context.Context) bool { return false }
func (f *fakeHandlers) IsSlave(ctx context.Context) bool  { return false }
func (f *fakeHandlers) IsSolo(ctx context.Context) bool   { return true }
func (f *fakeHandlers) SelfURL(ctx context.Context) string { return "http://self" }
func (f *fakeHandlers) PublicToken(ctx context.Context) string { return string(f.tok) }

func (f *fakeHandlers) RestrictToPaths(ctx context.Context, paths []string, tok token.Token) bool {
	if tok != f.tok {
		return false
	}
	f.restrictPaths = paths
	return true
}
func (f *fakeHandlers) RestrictToElements(ctx context.Context, elementIDs []string, tok token.Token) bool {
	if tok != f.tok {
		return false
	}
	f.restrict = elementIDs
	return true
}
func (f *fakeHandlers) UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, tok token.Token, signalDonePeerURL string) bool {
	return tok == f.tok
}
func (f *fakeHandlers) UpdatePageQueue(ctx context.Context, pages []sitemap.Page, tok token.Token) bool {
	if tok != f.tok {
		return false
	}
	f.pages = pages
	return true
}
func (f *fakeHandlers) SlaveDone(ctx context.Context, slaveURL string, tok token.Token) bool {
	return tok == f.tok
}
func (f *fakeHandlers) RegisterIssues(ctx context.Context, issues []issue.Issue, tok token.Token) bool {
	if tok != f.tok {
		return false
	}
	f.issues = append(f.issues, issues...)
	return true
}
func (f *fakeHandlers) RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary, tok token.Token) bool {
	return tok == f.tok
}

var _ gridrpc.Handlers = (*fakeHandlers)(nil)

func TestHTTPClient_publicAndPrivilegedRoundTrip(t *testing.T) {
	h := &fakeHandlers{tok: "secret-tok", status: "running"}
	srv := httptest.NewServer(gridrpc.NewServer(h))
	defer srv.Close()

	client := gridrpc.NewHTTPClient(srv.URL, h.tok)
	ctx := context.Background()

	status, err := client.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, "running", status)

	ok, err := client.UpdatePageQueue(ctx, []sitemap.Page{{URL: "http://a", Elements: []string{"e1"}}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []sitemap.Page{{URL: "http://a", Elements: []string{"e1"}}}, h.pages)

	ok, err = client.RegisterIssues(ctx, []issue.Issue{{UniqueID: "u1", Name: "xss", URL: "http://a", Severity: "high"}})
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, h.issues, 1)
}

func TestHTTPClient_wrongTokenRejected(t *testing.T) {
	h := &fakeHandlers{tok: "secret-tok"}
	srv := httptest.NewServer(gridrpc.NewServer(h))
	defer srv.Close()

	client := gridrpc.NewHTTPClient(srv.URL, "wrong-tok")
	ok, err := client.UpdatePageQueue(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInProcClient_forwardsToHandlers(t *testing.T) {
	h := &fakeHandlers{tok: "tok"}
	client := gridrpc.NewInProcClient(h, h.tok)

	ok, err := client.RestrictToElements(context.Background(), []string{"e1", "e2"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"e1", "e2"}, h.restrict)

	ok, err = client.RestrictToPaths(context.Background(), []string{"http://a", "http://b"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"http://a", "http://b"}, h.restrictPaths)
}

func TestHTTPClient_reportAndAccessorSurface(t *testing.T) {
	h := &fakeHandlers{tok: "tok", issues: []issue.Issue{{UniqueID: "I1", Name: "xss"}}}
	srv := httptest.NewServer(gridrpc.NewServer(h))
	defer srv.Close()

	client := gridrpc.NewHTTPClient(srv.URL, h.tok)
	ctx := context.Background()

	report, err := client.Report(ctx)
	require.NoError(t, err)
	require.Equal(t, "report", string(report))

	serialized, err := client.SerializedReport(ctx)
	require.NoError(t, err)
	require.Equal(t, "serialized", string(serialized))

	reportAs, err := client.ReportAs(ctx, "html")
	require.NoError(t, err)
	require.Equal(t, "report-as-html", string(reportAs))

	issues, err := client.Issues(ctx)
	require.NoError(t, err)
	require.Equal(t, h.issues, issues)

	byHash, err := client.IssuesAsHash(ctx)
	require.NoError(t, err)
	require.Equal(t, h.issues[0], byHash["I1"])

	modules, err := client.ListModules(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"xss"}, modules)

	plugins, err := client.ListPlugins(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"form_crawler"}, plugins)

	version, err := client.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, "test-version", version)

	revision, err := client.Revision(ctx)
	require.NoError(t, err)
	require.Equal(t, "test-revision", revision)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, float64(1), stats["issues"])
}

func TestInstanceDescriptor_validateRejectsMissingFields(t *testing.T) {
	require.Error(t, gridrpc.InstanceDescriptor{}.Validate())
	require.Error(t, gridrpc.InstanceDescriptor{URL: "http://a"}.Validate())
	require.NoError(t, gridrpc.InstanceDescriptor{URL: "http://a", Token: "t"}.Validate())
}
