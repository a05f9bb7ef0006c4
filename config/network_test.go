package config

import "testing"

func TestNetworkParamsKnownNetworks(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		params, err := NetworkParams(network)
		if err != nil {
			t.Fatalf("NetworkParams(%s) error: %v", network, err)
		}
		if params.TargetTimePerBlock <= 0 {
			t.Errorf("%s: TargetTimePerBlock must be positive, got %d", network, params.TargetTimePerBlock)
		}
		if params.DifficultyAdjustmentSpan == 0 {
			t.Errorf("%s: DifficultyAdjustmentSpan must be nonzero", network)
		}
		if params.HalvingFrequency == 0 {
			t.Errorf("%s: HalvingFrequency must be nonzero", network)
		}
	}
}

func TestNetworkParamsUnknownNetwork(t *testing.T) {
	if _, err := NetworkParams("unknown"); err == nil {
		t.Error("expected error for unknown network")
	}
}

func TestMainnetAndTestnetDifficultyDiffer(t *testing.T) {
	mainnet, err := NetworkParams(Mainnet)
	if err != nil {
		t.Fatalf("NetworkParams(Mainnet) error: %v", err)
	}
	testnet, err := NetworkParams(Testnet)
	if err != nil {
		t.Fatalf("NetworkParams(Testnet) error: %v", err)
	}
	if testnet.MinimumHashDifficulty >= mainnet.MinimumHashDifficulty {
		t.Error("testnet should have a lower minimum difficulty than mainnet, for fast local mining")
	}
}

func TestGenesisTimestampKnownNetworks(t *testing.T) {
	for _, network := range []NetworkType{Mainnet, Testnet} {
		ts, err := GenesisTimestamp(network)
		if err != nil {
			t.Fatalf("GenesisTimestamp(%s) error: %v", network, err)
		}
		if ts.IsZero() {
			t.Errorf("%s: genesis timestamp should not be zero", network)
		}
	}
}

func TestGenesisTimestampUnknownNetwork(t *testing.T) {
	if _, err := GenesisTimestamp("unknown"); err == nil {
		t.Error("expected error for unknown network")
	}
}
