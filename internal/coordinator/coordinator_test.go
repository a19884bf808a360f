package coordinator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/coordinator"
	"github.com/gridscan/hpg/internal/gridrpc"
	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/spider"
	"github.com/gridscan/hpg/internal/token"
)

type fakeAuditor struct {
	issues []issue.Issue
}

func (f *fakeAuditor) Prepare(ctx context.Context) error { return nil }

func (f *fakeAuditor) Audit(ctx context.Context, scope coordinator.Scope) ([]issue.Issue, error) {
	return f.issues, nil
}

func (f *fakeAuditor) ListModules() []string { return []string{"xss", "sqli"} }
func (f *fakeAuditor) ListPlugins() []string { return []string{"form_crawler"} }

var _ coordinator.Auditor = (*fakeAuditor)(nil)

type fakeSpider struct {
	pages []sitemap.Page
}

func (f *fakeSpider) Start(ctx context.Context, target string) <-chan spider.Event {
	ch := make(chan spider.Event, len(f.pages)+1)
	for _, p := range f.pages {
		ch <- spider.Event{Kind: spider.EventPage, Page: p}
	}
	ch <- spider.Event{Kind: spider.EventCrawlComplete}
	close(ch)
	return ch
}

func (f *fakeSpider) BroadcastPeers(peers []string) {}
func (f *fakeSpider) SignalPeerDone(peerURL string) {}

var _ spider.Spider = (*fakeSpider)(nil)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition never became true")
}

func noClient(string, token.Token) gridrpc.Client {
	panic("unexpected outbound RPC in this test")
}

// deadSlaveClient simulates a slave that accepts run() but then vanishes:
// it never calls slave_done, and every subsequent call (including the
// liveness probe) fails as if the process had crashed.
type deadSlaveClient struct{}

func (deadSlaveClient) Run(ctx context.Context) (bool, error)     { return true, nil }
func (deadSlaveClient) Pause(ctx context.Context) (bool, error)   { return true, nil }
func (deadSlaveClient) Resume(ctx context.Context) (bool, error)  { return true, nil }
func (deadSlaveClient) CleanUp(ctx context.Context) (bool, error) { return true, nil }
func (deadSlaveClient) Busy(ctx context.Context) (bool, error)    { return false, nil }
func (deadSlaveClient) Status(ctx context.Context) (string, error) {
	return "", errors.New("slave unreachable")
}
func (deadSlaveClient) Stats(ctx context.Context) (gridrpc.InstanceStats, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) Report(ctx context.Context) ([]byte, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) SerializedReport(ctx context.Context) ([]byte, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) ReportAs(ctx context.Context, name string) ([]byte, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) Issues(ctx context.Context) ([]issue.Issue, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) IssuesAsHash(ctx context.Context) (map[string]issue.Issue, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) ListModules(ctx context.Context) ([]string, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) ListPlugins(ctx context.Context) ([]string, error) {
	return nil, errors.New("slave unreachable")
}
func (deadSlaveClient) Version(ctx context.Context) (string, error) {
	return "", errors.New("slave unreachable")
}
func (deadSlaveClient) Revision(ctx context.Context) (string, error) {
	return "", errors.New("slave unreachable")
}
func (deadSlaveClient) Progress(ctx context.Context, opts gridrpc.ProgressOptions) (gridrpc.ProgressData, error) {
	return gridrpc.ProgressData{}, errors.New("slave unreachable")
}
func (deadSlaveClient) Enslave(ctx context.Context, desc gridrpc.InstanceDescriptor) (bool, error) {
	return false, errors.New("slave unreachable")
}
func (deadSlaveClient) SetAsMaster(ctx context.Context) (bool, error) { return false, nil }
func (deadSlaveClient) SetMaster(ctx context.Context, masterURL string, masterToken token.Token) (bool, error) {
	return true, nil
}
func (deadSlaveClient) IsMaster(ctx context.Context) (bool, error) { return false, nil }
func (deadSlaveClient) IsSlave(ctx context.Context) (bool, error)  { return true, nil }
func (deadSlaveClient) IsSolo(ctx context.Context) (bool, error)   { return false, nil }
func (deadSlaveClient) SelfURL(ctx context.Context) (string, error) {
	return "http://dead-slave", nil
}
func (deadSlaveClient) PublicToken(ctx context.Context) (string, error) { return "dead-slave-pub", nil }
func (deadSlaveClient) RestrictToPaths(ctx context.Context, paths []string) (bool, error) {
	return true, nil
}
func (deadSlaveClient) RestrictToElements(ctx context.Context, elementIDs []string) (bool, error) {
	return true, nil
}
func (deadSlaveClient) UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, signalDonePeerURL string) (bool, error) {
	return true, nil
}
func (deadSlaveClient) UpdatePageQueue(ctx context.Context, pages []sitemap.Page) (bool, error) {
	return true, nil
}
func (deadSlaveClient) SlaveDone(ctx context.Context, slaveURL string) (bool, error) {
	return true, nil
}
func (deadSlaveClient) RegisterIssues(ctx context.Context, issues []issue.Issue) (bool, error) {
	return true, nil
}
func (deadSlaveClient) RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary) (bool, error) {
	return true, nil
}

var _ gridrpc.Client = deadSlaveClient{}

// S1: a solo instance runs, audits, and converges without any grid
// fan-out.
func TestInstance_soloRun_convergesAndStoresIssues(t *testing.T) {
	auditor := &fakeAuditor{issues: []issue.Issue{{UniqueID: "I1", Name: "xss", URL: "http://t/a"}}}
	inst := coordinator.New(coordinator.Config{
		SelfURL:     "http://solo",
		PublicToken: "solo-pub",
		PrivToken:   "solo-priv",
		Target:      "http://t",
		Auditor:     auditor,
		NewClient:   noClient,
	})

	ctx := context.Background()
	require.True(t, inst.IsSolo(ctx))
	require.True(t, inst.Run(ctx))
	require.False(t, inst.Run(ctx), "second run() call is a no-op")

	eventually(t, func() bool { return inst.Status(ctx) == string(coordinator.StateDone) })
	require.False(t, inst.Busy(ctx))

	issues := inst.Issues(ctx)
	require.Len(t, issues, 1)
	require.Equal(t, "I1", issues[0].UniqueID)
}

// S3: a privileged call with the wrong token is rejected; the correct
// token succeeds.
func TestInstance_privilegedCall_rejectsWrongToken(t *testing.T) {
	inst := coordinator.New(coordinator.Config{
		SelfURL:     "http://m",
		PublicToken: "m-pub",
		PrivToken:   "m-priv",
		NewClient:   noClient,
	})
	ctx := context.Background()
	require.True(t, inst.SetAsMaster(ctx))

	require.False(t, inst.RegisterIssues(ctx, []issue.Issue{{UniqueID: "I1"}}, "wrong-token"))
	require.Empty(t, inst.Issues(ctx))

	require.True(t, inst.RegisterIssues(ctx, []issue.Issue{{UniqueID: "I1"}}, "m-priv"))
	require.Len(t, inst.Issues(ctx), 1)
}

// PublicToken never leaks the privileged guard secret.
func TestInstance_publicToken_isNotThePrivToken(t *testing.T) {
	inst := coordinator.New(coordinator.Config{
		SelfURL:     "http://m",
		PublicToken: "m-pub",
		PrivToken:   "m-priv",
		NewClient:   noClient,
	})
	ctx := context.Background()
	require.Equal(t, "m-pub", inst.PublicToken(ctx))
	require.NotEqual(t, "m-priv", inst.PublicToken(ctx))
}

// S2: a master with one slave partitions work, distributes it, audits its
// own share, and converges once the slave reports done — merging both
// sides' issues.
func TestInstance_masterSlave_distributesAuditsAndConverges(t *testing.T) {
	var master, slave *coordinator.Instance

	route := func(url string, tok token.Token) gridrpc.Client {
		switch url {
		case "http://master":
			return gridrpc.NewInProcClient(master, tok)
		case "http://slave-1":
			return gridrpc.NewInProcClient(slave, tok)
		default:
			panic("unknown peer: " + url)
		}
	}

	masterAuditor := &fakeAuditor{issues: []issue.Issue{{UniqueID: "M1", Name: "sqli", URL: "http://t/a"}}}
	slaveAuditor := &fakeAuditor{issues: []issue.Issue{{UniqueID: "S1", Name: "xss", URL: "http://t/b"}}}

	master = coordinator.New(coordinator.Config{
		SelfURL:     "http://master",
		PublicToken: "master-pub",
		PrivToken:   "master-priv",
		Target:      "http://t",
		Auditor:     masterAuditor,
		Spider: &fakeSpider{pages: []sitemap.Page{
			{URL: "http://t/a", Elements: []string{"e1"}},
			{URL: "http://t/b", Elements: []string{"e2"}},
		}},
		NewClient:           route,
		MaxSlaveConcurrency: 4,
	})
	slave = coordinator.New(coordinator.Config{
		SelfURL:             "http://slave-1",
		PublicToken:         "slave-pub",
		PrivToken:           "slave-priv",
		Auditor:             slaveAuditor,
		NewClient:           route,
		MaxSlaveConcurrency: 4,
	})

	ctx := context.Background()
	require.True(t, master.Enslave(ctx, gridrpc.InstanceDescriptor{URL: "http://slave-1", Token: "slave-pub"}))
	require.True(t, master.IsMaster(ctx))
	require.True(t, slave.IsSlave(ctx))

	require.True(t, master.Run(ctx))

	eventually(t, func() bool { return master.Status(ctx) == string(coordinator.StateDone) })
	require.False(t, master.Busy(ctx))
	require.False(t, slave.Busy(ctx))

	seen := make(map[string]bool)
	for _, iss := range master.Issues(ctx) {
		seen[iss.UniqueID] = true
	}
	require.True(t, seen["M1"], "master's own finding should be present")
	require.True(t, seen["S1"], "slave's forwarded finding should be present")
}

// S6: a slave that dies mid-scan (accepts run() but never reports
// slave_done, and fails every call afterward) must still let the master
// converge once the liveness deadline elapses and the confirming progress
// probe also fails.
func TestInstance_masterConverges_whenSlaveDiesMidScan(t *testing.T) {
	masterAuditor := &fakeAuditor{issues: []issue.Issue{{UniqueID: "M1", Name: "sqli", URL: "http://t/a"}}}

	master := coordinator.New(coordinator.Config{
		SelfURL:     "http://master",
		PublicToken: "master-pub",
		PrivToken:   "master-priv",
		Target:      "http://t",
		Auditor:     masterAuditor,
		NewClient: func(url string, tok token.Token) gridrpc.Client {
			return deadSlaveClient{}
		},
		MaxSlaveConcurrency:   4,
		SlaveLivenessDeadline: 20 * time.Millisecond,
	})

	ctx := context.Background()
	require.True(t, master.Enslave(ctx, gridrpc.InstanceDescriptor{URL: "http://dead-slave", Token: "dead-slave-pub"}))
	require.True(t, master.Run(ctx))

	eventually(t, func() bool { return master.Status(ctx) == string(coordinator.StateDone) })
	require.False(t, master.Busy(ctx))
	require.Len(t, master.Issues(ctx), 1, "master's own finding still converges despite the dead slave")
}

// enslave fails cleanly when the descriptor is incomplete, and a
// slave can't itself call enslave (role_violation collapses to false).
func TestInstance_enslave_rejectsBadDescriptorAndSlaveCaller(t *testing.T) {
	master := coordinator.New(coordinator.Config{
		SelfURL:     "http://master",
		PublicToken: "master-pub",
		PrivToken:   "master-priv",
		NewClient:   noClient,
	})
	ctx := context.Background()
	require.False(t, master.Enslave(ctx, gridrpc.InstanceDescriptor{URL: "http://slave-1"}))

	slave := coordinator.New(coordinator.Config{
		SelfURL:     "http://slave-1",
		PublicToken: "slave-pub",
		PrivToken:   "slave-priv",
		NewClient: func(url string, tok token.Token) gridrpc.Client {
			return gridrpc.NewInProcClient(nil, tok)
		},
	})
	require.True(t, slave.SetMaster(ctx, "http://master", "master-priv"))
	require.False(t, slave.Enslave(ctx, gridrpc.InstanceDescriptor{URL: "http://other", Token: "tok"}))
}
