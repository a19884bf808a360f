// Package gridrpc is the privileged + public RPC surface of spec.md §4.9
// and §6: wire types, the Handlers interface an Instance implements, an
// HTTP+JSON Server exposing it, and Client implementations (a real HTTP
// client, and an in-process fast-path client for same-process peers and
// tests).
package gridrpc

import (
	"encoding/json"

	"github.com/gridscan/hpg/internal/issue"
	"github.com/gridscan/hpg/internal/sitemap"
)

// InstanceDescriptor is the wire shape of spec.md §6's "Instance
// descriptor": a mapping with required keys url and token. A missing
// field causes enslave to fail with missing_field.
type InstanceDescriptor struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// Validate checks the required-keys contract, returning a MissingField
// *Error if either is empty.
func (d InstanceDescriptor) Validate() error {
	if d.URL == "" || d.Token == "" {
		return New(MissingField, "instance descriptor requires url and token")
	}
	return nil
}

// ProgressOptions enumerates the sections progress() may include,
// spec.md §4.8: each boolean defaults to true except AsHash.
type ProgressOptions struct {
	Stats    bool `json:"stats"`
	Messages bool `json:"messages"`
	Slaves   bool `json:"slaves"`
	Issues   bool `json:"issues"`
	AsHash   bool `json:"as_hash"`
}

// DefaultProgressOptions returns the spec.md §4.8 default: every section
// included except AsHash.
func DefaultProgressOptions() ProgressOptions {
	return ProgressOptions{Stats: true, Messages: true, Slaves: true, Issues: true}
}

// InstanceStats is a per-instance stats mapping, keyed loosely since the
// concrete stat fields are owned by the (out of scope) audit/plugin
// subsystem; the coordination layer only merges and sorts them.
type InstanceStats map[string]any

// InstanceProgress is one entry of the "instances" list in spec.md §6's
// Progress payload: at minimum {url, status}, plus stat fields.
type InstanceProgress struct {
	URL    string        `json:"url"`
	Status string        `json:"status"`
	Busy   bool          `json:"busy"`
	Stats  InstanceStats `json:"stats,omitempty"`
}

// ProgressData is the merged result of progress(opts), spec.md §4.8/§6.
type ProgressData struct {
	Status    string             `json:"status"`
	Busy      bool               `json:"busy"`
	Messages  []string           `json:"messages,omitempty"`
	Stats     InstanceStats      `json:"stats,omitempty"`
	Issues    []issue.Summary    `json:"issues,omitempty"`
	Instances []InstanceProgress `json:"instances,omitempty"`
}

// envelope is the wire format for both requests and responses on the HTTP
// transport: a flat JSON object carrying the RPC token alongside whatever
// payload the method needs, and a response carrying either a result or an
// Error kind.
type envelope struct {
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type response struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data,omitempty"`
	Kind    Kind            `json:"kind,omitempty"`
	Message string          `json:"message,omitempty"`
}

// pageWire mirrors sitemap.Page for the wire; kept distinct so the
// internal type can evolve independently of the transport contract.
type pageWire struct {
	URL      string   `json:"url"`
	Elements []string `json:"elements,omitempty"`
}

func toPageWire(pages []sitemap.Page) []pageWire {
	out := make([]pageWire, len(pages))
	for i, p := range pages {
		out[i] = pageWire{URL: p.URL, Elements: p.Elements}
	}
	return out
}

func fromPageWire(pages []pageWire) []sitemap.Page {
	out := make([]sitemap.Page, len(pages))
	for i, p := range pages {
		out[i] = sitemap.Page{URL: p.URL, Elements: p.Elements}
	}
	return out
}

// variationWire mirrors issue.Variation for the wire.
type variationWire struct {
	ElementID string `json:"element_id"`
	Payload   string `json:"payload"`
	Evidence  string `json:"evidence"`
}

// issueWire mirrors issue.Issue for the wire.
type issueWire struct {
	UniqueID   string          `json:"unique_id"`
	Name       string          `json:"name"`
	URL        string          `json:"url"`
	ElementID  string          `json:"element_id"`
	Severity   string          `json:"severity"`
	Variations []variationWire `json:"variations,omitempty"`
}

// summaryWire mirrors issue.Summary for the wire.
type summaryWire struct {
	UniqueID string `json:"unique_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Severity string `json:"severity"`
}

func toIssueWire(issues []issue.Issue) []issueWire {
	out := make([]issueWire, len(issues))
	for i, iss := range issues {
		variations := make([]variationWire, len(iss.Variations))
		for j, v := range iss.Variations {
			variations[j] = variationWire{ElementID: v.ElementID, Payload: v.Payload, Evidence: v.Evidence}
		}
		out[i] = issueWire{
			UniqueID:   iss.UniqueID,
			Name:       iss.Name,
			URL:        iss.URL,
			ElementID:  iss.ElementID,
			Severity:   iss.Severity,
			Variations: variations,
		}
	}
	return out
}

func fromIssueWire(wire []issueWire) []issue.Issue {
	out := make([]issue.Issue, len(wire))
	for i, w := range wire {
		var variations []issue.Variation
		if len(w.Variations) > 0 {
			variations = make([]issue.Variation, len(w.Variations))
		}
		for j, v := range w.Variations {
			variations[j] = issue.Variation{ElementID: v.ElementID, Payload: v.Payload, Evidence: v.Evidence}
		}
		out[i] = issue.Issue{
			UniqueID:   w.UniqueID,
			Name:       w.Name,
			URL:        w.URL,
			ElementID:  w.ElementID,
			Severity:   w.Severity,
			Variations: variations,
		}
	}
	return out
}

func toSummaryWire(summaries []issue.Summary) []summaryWire {
	out := make([]summaryWire, len(summaries))
	for i, s := range summaries {
		out[i] = summaryWire{UniqueID: s.UniqueID, Name: s.Name, URL: s.URL, Severity: s.Severity}
	}
	return out
}

func fromSummaryWire(wire []summaryWire) []issue.Summary {
	out := make([]issue.Summary, len(wire))
	for i, w := range wire {
		out[i] = issue.Summary{UniqueID: w.UniqueID, Name: w.Name, URL: w.URL, Severity: w.Severity}
	}
	return out
}
