// Package daemon wires the membership engine, identity store, transport,
// and HTTP debug surface into a single running node, and owns its TOML
// configuration, following a DefaultConfig/nested-table convention.
package daemon

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the full on-disk node configuration.
type Config struct {
	Node       NodeConfig       `toml:"node"`
	Membership MembershipConfig `toml:"membership"`
	Transport  TransportConfig  `toml:"transport"`
	API        APIConfig        `toml:"api"`
	Identity   IdentityConfig   `toml:"identity"`
	Log        LogConfig        `toml:"log"`
}

// NodeConfig names the local node and where it keeps its state.
type NodeConfig struct {
	DataDir string `toml:"data_dir"`
}

// MembershipConfig configures the HyParView engine.
type MembershipConfig struct {
	MaxActive               int    `toml:"max_active"`
	MaxPassive              int    `toml:"max_passive"`
	ActiveRandomWalkLength  int    `toml:"active_random_walk_length"`
	PassiveRandomWalkLength int    `toml:"passive_random_walk_length"`
	ShuffleSampleSize       int    `toml:"shuffle_sample_size"`
	ShuffleTTL              int    `toml:"shuffle_ttl"`
	ShuffleInterval         string `toml:"shuffle_interval"`
	PromoteInterval         string `toml:"promote_interval"`
}

// TransportConfig configures the TCP peer-to-peer listener.
type TransportConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DialTimeout string `toml:"dial_timeout"`
}

// APIConfig configures the debug/metrics HTTP server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// IdentityConfig configures the identity resolver cache.
type IdentityConfig struct {
	CachePath string `toml:"cache_path"`
}

// LogConfig configures the operational logger.
type LogConfig struct {
	Level string `toml:"level"`
}

// DefaultConfig returns the configuration a freshly initialized node runs
// with, before any TOML file is applied on top.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			DataDir: "./data",
		},
		Membership: MembershipConfig{
			MaxActive:               5,
			MaxPassive:              30,
			ActiveRandomWalkLength:  6,
			PassiveRandomWalkLength: 3,
			ShuffleSampleSize:       8,
			ShuffleTTL:              3,
			ShuffleInterval:         "30s",
			PromoteInterval:         "10s",
		},
		Transport: TransportConfig{
			ListenAddr:  "0.0.0.0:7946",
			DialTimeout: "5s",
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8721,
		},
		Identity: IdentityConfig{
			CachePath: "./data/identities.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path as TOML over top of DefaultConfig, so a config file only
// needs to name the fields it overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("daemon: decode config %s: %w", path, err)
	}
	return cfg, nil
}
