package issue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/issue"
)

func TestSummarySet_dedupByUniqueID(t *testing.T) {
	s := issue.NewSummarySet()
	s.Merge(issue.Summary{UniqueID: "u1", Name: "xss"})
	s.Merge(issue.Summary{UniqueID: "u1", Name: "xss-updated"})
	s.Merge(issue.Summary{UniqueID: "u2", Name: "sqli"})

	require.Equal(t, 2, s.Len())
	list := s.List()
	byID := map[string]issue.Summary{}
	for _, sm := range list {
		byID[sm.UniqueID] = sm
	}
	require.Equal(t, "xss-updated", byID["u1"].Name)
}

func TestMergeIssues_dedup(t *testing.T) {
	dst := []issue.Issue{{UniqueID: "u1", Name: "a"}}
	dst = issue.MergeIssues(dst, issue.Issue{UniqueID: "u1", Name: "b"}, issue.Issue{UniqueID: "u2", Name: "c"})
	require.Len(t, dst, 2)
}

func TestIssue_Strip(t *testing.T) {
	i := issue.Issue{UniqueID: "u1", Name: "xss", URL: "http://x", Severity: "high", Variations: []issue.Variation{{ElementID: "e1"}}}
	s := i.Strip()
	require.Equal(t, "u1", s.UniqueID)
	require.Equal(t, "xss", s.Name)
}
