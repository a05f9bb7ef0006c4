package config

import (
	"fmt"

	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.P2P.MinPeers < 0 {
		return fmt.Errorf("p2p.minpeers must be non-negative")
	}
	if cfg.P2P.MaxPeers > 0 && cfg.P2P.MinPeers > cfg.P2P.MaxPeers {
		return fmt.Errorf("p2p.minpeers must not exceed p2p.maxpeers")
	}
	if cfg.Mining.Enabled && cfg.Mining.Coinbase != "" {
		if err := types.Account(cfg.Mining.Coinbase).Validate(); err != nil {
			return fmt.Errorf("mining.coinbase: %w", err)
		}
	}
	return nil
}
