// Package config loads the Options store spec.md §6 lists: the handful
// of settings the coordination layer consumes (self_url derivation, grid
// mode, target, plugin set, tokens, restrict_paths). Backed by
// spf13/viper, the configuration library used by pyneda-sukyan (the
// real web-app security scanner in the retrieved example manifests)
// alongside spf13/cobra for its CLI.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Options is the subset of configuration the coordination layer reads,
// spec.md §6's "Configuration options consumed" table.
type Options struct {
	RPCAddress string `mapstructure:"rpc_address"`
	RPCPort    int    `mapstructure:"rpc_port"`
	GridMode   string `mapstructure:"grid_mode"`
	URL        string `mapstructure:"url"`
	Plugins    []string `mapstructure:"plugins"`

	Datastore struct {
		Token            string `mapstructure:"token"`
		MasterPrivToken  string `mapstructure:"master_priv_token"`
	} `mapstructure:"datastore"`

	// RestrictPaths seeds the instance's initial path scope
	// (coordinator.Config.InitialRestrictPaths); a master replaces that
	// scope with its own URL chunk once partitioning completes, without
	// writing back to Options.
	RestrictPaths []string `mapstructure:"restrict_paths"`
}

// HighPerformance reports whether grid_mode enables master mode.
func (o Options) HighPerformance() bool {
	return o.GridMode == "high_performance"
}

// SelfURL derives the public self_url from rpc_address/rpc_port.
func (o Options) SelfURL() string {
	return fmt.Sprintf("http://%s:%d", o.RPCAddress, o.RPCPort)
}

// Load reads configuration from configFile (if non-empty), environment
// variables prefixed HPG_, and the given defaults, the viper precedence
// order pyneda-sukyan's own config package follows.
func Load(configFile string) (Options, error) {
	v := viper.New()
	v.SetDefault("rpc_address", "0.0.0.0")
	v.SetDefault("rpc_port", 7331)
	v.SetDefault("grid_mode", "solo")

	v.SetEnvPrefix("hpg")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return opts, nil
}
