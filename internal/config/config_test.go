package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridscan/hpg/internal/config"
)

func TestLoad_defaultsWhenNoFile(t *testing.T) {
	opts, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", opts.RPCAddress)
	require.Equal(t, 7331, opts.RPCPort)
	require.False(t, opts.HighPerformance())
}

func TestLoad_readsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hpg.yaml")
	body := []byte(`
rpc_address: "127.0.0.1"
rpc_port: 9000
grid_mode: "high_performance"
url: "http://target.example"
plugins:
  - xss
  - sqli
datastore:
  token: "pub-tok"
  master_priv_token: "priv-tok"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	opts, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1", opts.RPCAddress)
	require.Equal(t, 9000, opts.RPCPort)
	require.True(t, opts.HighPerformance())
	require.Equal(t, "http://target.example", opts.URL)
	require.Equal(t, []string{"xss", "sqli"}, opts.Plugins)
	require.Equal(t, "pub-tok", opts.Datastore.Token)
	require.Equal(t, "http://127.0.0.1:9000", opts.SelfURL())
}
