package instance_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/instance"
)

func TestRegistry_allDone(t *testing.T) {
	r := instance.NewRegistry()
	require.True(t, r.AllDone(), "vacuously true with no slaves")

	r.Add(instance.Instance{URL: "s1:1", Token: "t1"})
	r.Add(instance.Instance{URL: "s2:1", Token: "t2"})
	require.False(t, r.AllDone())
	require.Equal(t, 2, r.Len())

	r.MarkDone("s1:1")
	require.False(t, r.AllDone())

	r.MarkDone("s2:1")
	require.True(t, r.AllDone())

	// idempotent: marking done twice is a no-op
	r.MarkDone("s2:1")
	require.True(t, r.AllDone())
	require.Equal(t, 2, r.DoneCount())
}

func TestRegistry_done(t *testing.T) {
	r := instance.NewRegistry()
	r.Add(instance.Instance{URL: "s1:1"})
	require.False(t, r.Done("s1:1"))

	r.MarkDone("s1:1")
	require.True(t, r.Done("s1:1"))
	require.False(t, r.Done("s2:1"), "never-registered URL is not done")
}

func TestRegistry_listIsSnapshot(t *testing.T) {
	r := instance.NewRegistry()
	r.Add(instance.Instance{URL: "s1:1"})
	list := r.List()
	list[0].URL = "mutated"
	require.Equal(t, "s1:1", r.List()[0].URL)
}
