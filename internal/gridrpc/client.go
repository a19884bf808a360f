package gridrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/sitemap"
	"github.com/gridscan/hpg/internal/token"
)

// Client is how one instance calls another's RPC surface, whether over
// the network (HTTPClient) or in-process (InProcClient). It mirrors
// Handlers with the token folded into the constructor instead of threaded
// through every call — a peer only ever calls with one fixed token.
type Client interface {
	Run(ctx context.Context) (bool, error)
	Pause(ctx context.Context) (bool, error)
	Resume(ctx context.Context) (bool, error)
	CleanUp(ctx context.Context) (bool, error)
	Busy(ctx context.Context) (bool, error)
	Status(ctx context.Context) (string, error)
	Stats(ctx context.Context) (InstanceStats, error)
	Progress(ctx context.Context, opts ProgressOptions) (ProgressData, error)
	Report(ctx context.Context) ([]byte, error)
	SerializedReport(ctx context.Context) ([]byte, error)
	ReportAs(ctx context.Context, name string) ([]byte, error)
	Issues(ctx context.Context) ([]issue.Issue, error)
	IssuesAsHash(ctx context.Context) (map[string]issue.Issue, error)
	ListModules(ctx context.Context) ([]string, error)
	ListPlugins(ctx context.Context) ([]string, error)
	Version(ctx context.Context) (string, error)
	Revision(ctx context.Context) (string, error)
	Enslave(ctx context.Context, desc InstanceDescriptor) (bool, error)
	SetAsMaster(ctx context.Context) (bool, error)
	SetMaster(ctx context.Context, masterURL string, masterToken token.Token) (bool, error)
	IsMaster(ctx context.Context) (bool, error)
	IsSlave(ctx context.Context) (bool, error)
	IsSolo(ctx context.Context) (bool, error)
	SelfURL(ctx context.Context) (string, error)
	PublicToken(ctx context.Context) (string, error)

	RestrictToPaths(ctx context.Context, paths []string) (bool, error)
	RestrictToElements(ctx context.Context, elementIDs []string) (bool, error)
	UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, signalDonePeerURL string) (bool, error)
	UpdatePageQueue(ctx context.Context, pages []sitemap.Page) (bool, error)
	SlaveDone(ctx context.Context, slaveURL string) (bool, error)
	RegisterIssues(ctx context.Context, issues []issue.Issue) (bool, error)
	RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary) (bool, error)
}

// HTTPClient calls a peer's Server over the network, grounded on the
// net/http client composition style of Aureuma-si's agent callers: one
// *http.Client, a fixed base URL, and a thin call() helper every method
// goes through.
type HTTPClient struct {
	BaseURL string
	Token   token.Token
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient with a sane default timeout,
// matching the teacher pattern of never leaving the zero-value
// (unbounded) http.Client in play for RPC calls.
func NewHTTPClient(baseURL string, tok token.Token) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Token:   tok,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) call(ctx context.Context, method string, payload any, dst any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return New(MissingField, "encode payload: %v", err)
		}
	}
	env := envelope{Token: string(c.Token), Payload: body}
	raw, err := json.Marshal(env)
	if err != nil {
		return New(MissingField, "encode envelope: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/rpc/"+method, bytes.NewReader(raw))
	if err != nil {
		return New(TransportError, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return New(TransportError, "%s: %v", method, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return New(TransportError, "%s: decode response: %v", method, err)
	}
	if !out.OK {
		kind := out.Kind
		if kind == "" {
			kind = TransportError
		}
		return New(kind, "%s", out.Message)
	}
	if dst != nil && len(out.Data) > 0 {
		if err := json.Unmarshal(out.Data, dst); err != nil {
			return New(TransportError, "%s: decode result: %v", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) callBool(ctx context.Context, method string, payload any) (bool, error) {
	var v bool
	err := c.call(ctx, method, payload, &v)
	return v, err
}

func (c *HTTPClient) Run(ctx context.Context) (bool, error)     { return c.callBool(ctx, "run", nil) }
func (c *HTTPClient) Pause(ctx context.Context) (bool, error)   { return c.callBool(ctx, "pause", nil) }
func (c *HTTPClient) Resume(ctx context.Context) (bool, error)  { return c.callBool(ctx, "resume", nil) }
func (c *HTTPClient) CleanUp(ctx context.Context) (bool, error) { return c.callBool(ctx, "clean_up", nil) }
func (c *HTTPClient) Busy(ctx context.Context) (bool, error)    { return c.callBool(ctx, "busy", nil) }

func (c *HTTPClient) Status(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "status", nil, &v)
	return v, err
}

func (c *HTTPClient) Stats(ctx context.Context) (InstanceStats, error) {
	var v InstanceStats
	err := c.call(ctx, "stats", nil, &v)
	return v, err
}

func (c *HTTPClient) Progress(ctx context.Context, opts ProgressOptions) (ProgressData, error) {
	var v ProgressData
	err := c.call(ctx, "progress", opts, &v)
	return v, err
}

func (c *HTTPClient) Report(ctx context.Context) ([]byte, error) {
	var v []byte
	err := c.call(ctx, "report", nil, &v)
	return v, err
}

func (c *HTTPClient) SerializedReport(ctx context.Context) ([]byte, error) {
	var v []byte
	err := c.call(ctx, "serialized_report", nil, &v)
	return v, err
}

func (c *HTTPClient) ReportAs(ctx context.Context, name string) ([]byte, error) {
	var v []byte
	err := c.call(ctx, "report_as", struct {
		Name string `json:"name"`
	}{name}, &v)
	return v, err
}

func (c *HTTPClient) Issues(ctx context.Context) ([]issue.Issue, error) {
	var wire []issueWire
	if err := c.call(ctx, "issues", nil, &wire); err != nil {
		return nil, err
	}
	return fromIssueWire(wire), nil
}

func (c *HTTPClient) IssuesAsHash(ctx context.Context) (map[string]issue.Issue, error) {
	var wire map[string]issueWire
	if err := c.call(ctx, "issues_as_hash", nil, &wire); err != nil {
		return nil, err
	}
	out := make(map[string]issue.Issue, len(wire))
	for id, w := range wire {
		out[id] = fromIssueWire([]issueWire{w})[0]
	}
	return out, nil
}

func (c *HTTPClient) ListModules(ctx context.Context) ([]string, error) {
	var v []string
	err := c.call(ctx, "list_modules", nil, &v)
	return v, err
}

func (c *HTTPClient) ListPlugins(ctx context.Context) ([]string, error) {
	var v []string
	err := c.call(ctx, "list_plugins", nil, &v)
	return v, err
}

func (c *HTTPClient) Version(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "version", nil, &v)
	return v, err
}

func (c *HTTPClient) Revision(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "revision", nil, &v)
	return v, err
}

func (c *HTTPClient) Enslave(ctx context.Context, desc InstanceDescriptor) (bool, error) {
	return c.callBool(ctx, "enslave", desc)
}

func (c *HTTPClient) SetAsMaster(ctx context.Context) (bool, error) {
	return c.callBool(ctx, "set_as_master", nil)
}

func (c *HTTPClient) SetMaster(ctx context.Context, masterURL string, masterToken token.Token) (bool, error) {
	return c.callBool(ctx, "set_master", struct {
		MasterURL   string      `json:"master_url"`
		MasterToken token.Token `json:"master_token"`
	}{masterURL, masterToken})
}

func (c *HTTPClient) IsMaster(ctx context.Context) (bool, error) { return c.callBool(ctx, "master", nil) }
func (c *HTTPClient) IsSlave(ctx context.Context) (bool, error)  { return c.callBool(ctx, "slave", nil) }
func (c *HTTPClient) IsSolo(ctx context.Context) (bool, error)   { return c.callBool(ctx, "solo", nil) }

func (c *HTTPClient) SelfURL(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "self_url", nil, &v)
	return v, err
}

func (c *HTTPClient) PublicToken(ctx context.Context) (string, error) {
	var v string
	err := c.call(ctx, "token", nil, &v)
	return v, err
}

func (c *HTTPClient) RestrictToPaths(ctx context.Context, paths []string) (bool, error) {
	return c.callBool(ctx, "restrict_to_paths", paths)
}

func (c *HTTPClient) RestrictToElements(ctx context.Context, elementIDs []string) (bool, error) {
	return c.callBool(ctx, "restrict_to_elements", elementIDs)
}

func (c *HTTPClient) UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, signalDonePeerURL string) (bool, error) {
	return c.callBool(ctx, "update_element_ids_per_page", struct {
		IDsByURL       map[string][]string `json:"ids_by_url"`
		SignalDonePeer string               `json:"signal_done_peer_url"`
	}{idsByURL, signalDonePeerURL})
}

func (c *HTTPClient) UpdatePageQueue(ctx context.Context, pages []sitemap.Page) (bool, error) {
	return c.callBool(ctx, "update_page_queue", toPageWire(pages))
}

func (c *HTTPClient) SlaveDone(ctx context.Context, slaveURL string) (bool, error) {
	return c.callBool(ctx, "slave_done", struct {
		SlaveURL string `json:"slave_url"`
	}{slaveURL})
}

func (c *HTTPClient) RegisterIssues(ctx context.Context, issues []issue.Issue) (bool, error) {
	return c.callBool(ctx, "register_issues", toIssueWire(issues))
}

func (c *HTTPClient) RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary) (bool, error) {
	return c.callBool(ctx, "register_issue_summaries", toSummaryWire(summaries))
}

// InProcClient is the fast path used when a "peer" lives in this same
// process — e.g. tests that exercise the RPC surface without a socket. Conceptually grounded on joeycumines-go-utilpkg's inprocgrpc
// (an in-process grpc.ClientConnInterface that skips the wire entirely);
// implemented here as plain method forwarding since Handlers already is
// the in-process interface — see DESIGN.md for why inprocgrpc itself,
// which assumes real grpc codecs/ServiceDesc, wasn't imported directly.
type InProcClient struct {
	Handlers Handlers
	Token    token.Token
}

// NewInProcClient wraps h for in-process calls, gating privileged methods
// with tok exactly as the HTTP transport would.
func NewInProcClient(h Handlers, tok token.Token) *InProcClient {
	return &InProcClient{Handlers: h, Token: tok}
}

func (c *InProcClient) Run(ctx context.Context) (bool, error)     { return c.Handlers.Run(ctx), nil }
func (c *InProcClient) Pause(ctx context.Context) (bool, error)   { return c.Handlers.Pause(ctx), nil }
func (c *InProcClient) Resume(ctx context.Context) (bool, error)  { return c.Handlers.Resume(ctx), nil }
func (c *InProcClient) CleanUp(ctx context.Context) (bool, error) { return c.Handlers.CleanUp(ctx), nil }
func (c *InProcClient) Busy(ctx context.Context) (bool, error)    { return c.Handlers.Busy(ctx), nil }

func (c *InProcClient) Status(ctx context.Context) (string, error) {
	return c.Handlers.Status(ctx), nil
}

func (c *InProcClient) Stats(ctx context.Context) (InstanceStats, error) {
	return c.Handlers.Stats(ctx), nil
}

func (c *InProcClient) Progress(ctx context.Context, opts ProgressOptions) (ProgressData, error) {
	return c.Handlers.Progress(ctx, opts), nil
}

func (c *InProcClient) Report(ctx context.Context) ([]byte, error) {
	return c.Handlers.Report(ctx)
}

func (c *InProcClient) SerializedReport(ctx context.Context) ([]byte, error) {
	return c.Handlers.SerializedReport(ctx)
}

func (c *InProcClient) ReportAs(ctx context.Context, name string) ([]byte, error) {
	return c.Handlers.ReportAs(ctx, name)
}

func (c *InProcClient) Issues(ctx context.Context) ([]issue.Issue, error) {
	return c.Handlers.Issues(ctx), nil
}

func (c *InProcClient) IssuesAsHash(ctx context.Context) (map[string]issue.Issue, error) {
	return c.Handlers.IssuesAsHash(ctx), nil
}

func (c *InProcClient) ListModules(ctx context.Context) ([]string, error) {
	return c.Handlers.ListModules(ctx), nil
}

func (c *InProcClient) ListPlugins(ctx context.Context) ([]string, error) {
	return c.Handlers.ListPlugins(ctx), nil
}

func (c *InProcClient) Version(ctx context.Context) (string, error) {
	return c.Handlers.Version(ctx), nil
}

func (c *InProcClient) Revision(ctx context.Context) (string, error) {
	return c.Handlers.Revision(ctx), nil
}

func (c *InProcClient) Enslave(ctx context.Context, desc InstanceDescriptor) (bool, error) {
	if err := desc.Validate(); err != nil {
		return false, err
	}
	return c.Handlers.Enslave(ctx, desc), nil
}

func (c *InProcClient) SetAsMaster(ctx context.Context) (bool, error) {
	return c.Handlers.SetAsMaster(ctx), nil
}

func (c *InProcClient) SetMaster(ctx context.Context, masterURL string, masterToken token.Token) (bool, error) {
	return c.Handlers.SetMaster(ctx, masterURL, masterToken), nil
}

func (c *InProcClient) IsMaster(ctx context.Context) (bool, error) { return c.Handlers.IsMaster(ctx), nil }
func (c *InProcClient) IsSlave(ctx context.Context) (bool, error)  { return c.Handlers.IsSlave(ctx), nil }
func (c *InProcClient) IsSolo(ctx context.Context) (bool, error)   { return c.Handlers.IsSolo(ctx), nil }

func (c *InProcClient) SelfURL(ctx context.Context) (string, error) {
	return c.Handlers.SelfURL(ctx), nil
}

func (c *InProcClient) PublicToken(ctx context.Context) (string, error) {
	return c.Handlers.PublicToken(ctx), nil
}

func (c *InProcClient) RestrictToPaths(ctx context.Context, paths []string) (bool, error) {
	return c.Handlers.RestrictToPaths(ctx, paths, c.Token), nil
}

func (c *InProcClient) RestrictToElements(ctx context.Context, elementIDs []string) (bool, error) {
	return c.Handlers.RestrictToElements(ctx, elementIDs, c.Token), nil
}

func (c *InProcClient) UpdateElementIDsPerPage(ctx context.Context, idsByURL map[string][]string, signalDonePeerURL string) (bool, error) {
	return c.Handlers.UpdateElementIDsPerPage(ctx, idsByURL, c.Token, signalDonePeerURL), nil
}

func (c *InProcClient) UpdatePageQueue(ctx context.Context, pages []sitemap.Page) (bool, error) {
	return c.Handlers.UpdatePageQueue(ctx, pages, c.Token), nil
}

func (c *InProcClient) SlaveDone(ctx context.Context, slaveURL string) (bool, error) {
	return c.Handlers.SlaveDone(ctx, slaveURL, c.Token), nil
}

func (c *InProcClient) RegisterIssues(ctx context.Context, issues []issue.Issue) (bool, error) {
	return c.Handlers.RegisterIssues(ctx, issues, c.Token), nil
}

func (c *InProcClient) RegisterIssueSummaries(ctx context.Context, summaries []issue.Summary) (bool, error) {
	return c.Handlers.RegisterIssueSummaries(ctx, summaries, c.Token), nil
}

var _ Client = (*HTTPClient)(nil)
var _ Client = (*InProcClient)(nil)
