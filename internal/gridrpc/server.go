package gridrpc

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/logging"
	"github.com/gridscan/hpg/internal/token"
)

// Server adapts a Handlers implementation to HTTP+JSON, one endpoint per
// RPC method under /rpc/. This is the transport named "named-service
// handle" in spec.md §6, implemented without code generation — see
// DESIGN.md for why google.golang.org/grpc's wire codegen was dropped.
//
// Modelled on the HTTP+JSON mux style of Aureuma-si's resource-broker and
// router agents (the one teacher-candidate repo that implements a
// complete, hand-written HTTP RPC-ish surface end to end).
type Server struct {
	h   Handlers
	mux *http.ServeMux
}

// NewServer builds a Server around h, registering every RPC method.
func NewServer(h Handlers) *Server {
	s := &Server{h: h, mux: http.NewServeMux()}
	s.register()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) register() {
	s.handle("/rpc/run", func(r *http.Request, env envelope) (any, error) {
		return s.h.Run(r.Context()), nil
	})
	s.handle("/rpc/pause", func(r *http.Request, env envelope) (any, error) {
		return s.h.Pause(r.Context()), nil
	})
	s.handle("/rpc/resume", func(r *http.Request, env envelope) (any, error) {
		return s.h.Resume(r.Context()), nil
	})
	s.handle("/rpc/clean_up", func(r *http.Request, env envelope) (any, error) {
		return s.h.CleanUp(r.Context()), nil
	})
	s.handle("/rpc/busy", func(r *http.Request, env envelope) (any, error) {
		return s.h.Busy(r.Context()), nil
	})
	s.handle("/rpc/status", func(r *http.Request, env envelope) (any, error) {
		return s.h.Status(r.Context()), nil
	})
	s.handle("/rpc/stats", func(r *http.Request, env envelope) (any, error) {
		return s.h.Stats(r.Context()), nil
	})
	s.handle("/rpc/progress", func(r *http.Request, env envelope) (any, error) {
		var opts ProgressOptions
		if err := decodePayload(env, &opts); err != nil {
			return nil, err
		}
		return s.h.Progress(r.Context(), opts), nil
	})
	s.handle("/rpc/report", func(r *http.Request, env envelope) (any, error) {
		return s.h.Report(r.Context())
	})
	s.handle("/rpc/serialized_report", func(r *http.Request, env envelope) (any, error) {
		return s.h.SerializedReport(r.Context())
	})
	s.handle("/rpc/report_as", func(r *http.Request, env envelope) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return s.h.ReportAs(r.Context(), p.Name)
	})
	s.handle("/rpc/issues", func(r *http.Request, env envelope) (any, error) {
		return toIssueWire(s.h.Issues(r.Context())), nil
	})
	s.handle("/rpc/issues_as_hash", func(r *http.Request, env envelope) (any, error) {
		byID := s.h.IssuesAsHash(r.Context())
		out := make(map[string]issueWire, len(byID))
		for id, iss := range byID {
			out[id] = toIssueWire([]issue.Issue{iss})[0]
		}
		return out, nil
	})
	s.handle("/rpc/list_modules", func(r *http.Request, env envelope) (any, error) {
		return s.h.ListModules(r.Context()), nil
	})
	s.handle("/rpc/list_plugins", func(r *http.Request, env envelope) (any, error) {
		return s.h.ListPlugins(r.Context()), nil
	})
	s.handle("/rpc/version", func(r *http.Request, env envelope) (any, error) {
		return s.h.Version(r.Context()), nil
	})
	s.handle("/rpc/revision", func(r *http.Request, env envelope) (any, error) {
		return s.h.Revision(r.Context()), nil
	})
	s.handle("/rpc/enslave", func(r *http.Request, env envelope) (any, error) {
		var desc InstanceDescriptor
		if err := decodePayload(env, &desc); err != nil {
			return nil, err
		}
		if err := desc.Validate(); err != nil {
			return nil, err
		}
		return s.h.Enslave(r.Context(), desc), nil
	})
	s.handle("/rpc/set_as_master", func(r *http.Request, env envelope) (any, error) {
		return s.h.SetAsMaster(r.Context()), nil
	})
	s.handle("/rpc/set_master", func(r *http.Request, env envelope) (any, error) {
		var p struct {
			MasterURL   string      `json:"master_url"`
			MasterToken token.Token `json:"master_token"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return s.h.SetMaster(r.Context(), p.MasterURL, p.MasterToken), nil
	})
	s.handle("/rpc/master", func(r *http.Request, env envelope) (any, error) {
		return s.h.IsMaster(r.Context()), nil
	})
	s.handle("/rpc/slave", func(r *http.Request, env envelope) (any, error) {
		return s.h.IsSlave(r.Context()), nil
	})
	s.handle("/rpc/solo", func(r *http.Request, env envelope) (any, error) {
		return s.h.IsSolo(r.Context()), nil
	})
	s.handle("/rpc/self_url", func(r *http.Request, env envelope) (any, error) {
		return s.h.SelfURL(r.Context()), nil
	})
	s.handle("/rpc/token", func(r *http.Request, env envelope) (any, error) {
		return s.h.PublicToken(r.Context()), nil
	})

	// Privileged endpoints (§4.9): token travels in envelope.Token.
	s.handle("/rpc/restrict_to_paths", func(r *http.Request, env envelope) (any, error) {
		var paths []string
		if err := decodePayload(env, &paths); err != nil {
			return nil, err
		}
		return s.h.RestrictToPaths(r.Context(), paths, token.Token(env.Token)), nil
	})
	s.handle("/rpc/restrict_to_elements", func(r *http.Request, env envelope) (any, error) {
		var ids []string
		if err := decodePayload(env, &ids); err != nil {
			return nil, err
		}
		return s.h.RestrictToElements(r.Context(), ids, token.Token(env.Token)), nil
	})
	s.handle("/rpc/update_element_ids_per_page", func(r *http.Request, env envelope) (any, error) {
		var p struct {
			IDsByURL        map[string][]string `json:"ids_by_url"`
			SignalDonePeer  string               `json:"signal_done_peer_url"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return s.h.UpdateElementIDsPerPage(r.Context(), p.IDsByURL, token.Token(env.Token), p.SignalDonePeer), nil
	})
	s.handle("/rpc/update_page_queue", func(r *http.Request, env envelope) (any, error) {
		var wire []pageWire
		if err := decodePayload(env, &wire); err != nil {
			return nil, err
		}
		return s.h.UpdatePageQueue(r.Context(), fromPageWire(wire), token.Token(env.Token)), nil
	})
	s.handle("/rpc/slave_done", func(r *http.Request, env envelope) (any, error) {
		var p struct {
			SlaveURL string `json:"slave_url"`
		}
		if err := decodePayload(env, &p); err != nil {
			return nil, err
		}
		return s.h.SlaveDone(r.Context(), p.SlaveURL, token.Token(env.Token)), nil
	})
	s.handle("/rpc/register_issues", func(r *http.Request, env envelope) (any, error) {
		var issues []issueWire
		if err := decodePayload(env, &issues); err != nil {
			return nil, err
		}
		return s.h.RegisterIssues(r.Context(), fromIssueWire(issues), token.Token(env.Token)), nil
	})
	s.handle("/rpc/register_issue_summaries", func(r *http.Request, env envelope) (any, error) {
		var summaries []summaryWire
		if err := decodePayload(env, &summaries); err != nil {
			return nil, err
		}
		return s.h.RegisterIssueSummaries(r.Context(), fromSummaryWire(summaries), token.Token(env.Token)), nil
	})
}

// rpcFunc decodes an envelope and produces a result or an error; handle
// wraps it with the JSON envelope/response plumbing and per-call logging.
type rpcFunc func(r *http.Request, env envelope) (any, error)

func (s *Server) handle(path string, fn rpcFunc) {
	s.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		callID := uuid.NewString()
		log := logging.Default().Debug().Str("rpc", path).Str("call_id", callID)
		log.Log("rpc call received")

		if r.Method != http.MethodPost {
			writeError(w, New(MissingField, "%s requires POST", path))
			return
		}

		var env envelope
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
				writeError(w, New(MissingField, "invalid request body: %v", err))
				return
			}
		}

		result, err := fn(r, env)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, result)
	})
}

func decodePayload(env envelope, dst any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return New(MissingField, "invalid payload: %v", err)
	}
	return nil
}

func writeOK(w http.ResponseWriter, result any) {
	data, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{OK: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	kind := TransportError
	if e, ok := err.(*Error); ok {
		kind = e.Kind
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{OK: false, Kind: kind, Message: err.Error()})
}
