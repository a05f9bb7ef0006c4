// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Network parameters: defined in network.go, immutable, must match
//     across all nodes on the same network
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// P2P peer-sync networking
	P2P P2PConfig

	// Public REST API
	RPC RPCConfig

	// Mining
	Mining MiningConfig

	// Node signing/mining key
	Keyfile KeyfileConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	RebuildIndexes bool
}

// P2PConfig holds peer sync networking settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"` // host:port peer addresses
	MinPeers   int      `conf:"p2p.minpeers"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	ClearBans  bool     // Clear all peer bans on startup (not persisted in config file).
}

// RPCConfig holds public REST API settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MiningConfig holds block production settings.
type MiningConfig struct {
	Enabled  bool   `conf:"mining.enabled"`
	Coinbase string `conf:"mining.coinbase"` // Account (hex pubkey) to receive block rewards
}

// KeyfileConfig locates and unlocks the node's own signing key.
type KeyfileConfig struct {
	Path             string `conf:"keyfile.path"`
	PassphraseEnvVar string `conf:"keyfile.passphrase_env"` // env var holding the passphrase; empty prompts on the TTY
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.crankycoin
//	macOS:   ~/Library/Application Support/Crankycoin
//	Windows: %APPDATA%\Crankycoin
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crankycoin"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Crankycoin")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Crankycoin")
		}
		return filepath.Join(home, "AppData", "Roaming", "Crankycoin")
	default:
		return filepath.Join(home, ".crankycoin")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// ChainDBDir returns the block/state KV store directory.
func (c *Config) ChainDBDir() string {
	return filepath.Join(c.ChainDataDir(), "chaindata")
}

// P2PDBDir returns the peer store / ban store directory.
func (c *Config) P2PDBDir() string {
	return filepath.Join(c.ChainDataDir(), "p2p")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// DefaultKeyfilePath returns the default location of the node signing key.
func (c *Config) DefaultKeyfilePath() string {
	return filepath.Join(c.ChainDataDir(), "node.key")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "crankycoin.conf")
}
