package dispatcher_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/dispatcher"
	"github.com/gridscan/hpg/internal/gridrpc"
)

// fakeDispatcher spawns descriptors from a fixed, incrementing pool in
// place of a real process spawner; it exercises the Dispatcher and Pool
// interfaces in this package's tests.
type fakeDispatcher struct {
	pipeID string
	next   int
}

func (f *fakeDispatcher) PipeID() string { return f.pipeID }

func (f *fakeDispatcher) Spawn(ctx context.Context) (gridrpc.InstanceDescriptor, error) {
	f.next++
	return gridrpc.InstanceDescriptor{
		URL:   fmt.Sprintf("http://slave-%d", f.next),
		Token: fmt.Sprintf("tok-%d", f.next),
	}, nil
}

type fakePool struct {
	dispatchers []dispatcher.Dispatcher
}

func (f *fakePool) Preferred(ctx context.Context) ([]dispatcher.Dispatcher, error) {
	return f.dispatchers, nil
}

var (
	_ dispatcher.Dispatcher = (*fakeDispatcher)(nil)
	_ dispatcher.Pool       = (*fakePool)(nil)
)

func TestFakeDispatcher_spawnsIncrementingDescriptors(t *testing.T) {
	d := &fakeDispatcher{pipeID: "p1"}
	d1, err := d.Spawn(context.Background())
	require.NoError(t, err)
	d2, err := d.Spawn(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, d1.URL, d2.URL)
	require.Equal(t, "p1", d.PipeID())
}

func TestFakePool_returnsPreferredDispatchers(t *testing.T) {
	d := &fakeDispatcher{pipeID: "p1"}
	pool := &fakePool{dispatchers: []dispatcher.Dispatcher{d}}
	got, err := pool.Preferred(context.Background())
	require.NoError(t, err)
	require.Equal(t, []dispatcher.Dispatcher{d}, got)
}
