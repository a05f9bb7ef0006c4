package p2p

import "time"

// Peer represents a known full node, addressed by its host:port.
type Peer struct {
	Host        string
	ConnectedAt time.Time
	Source      string // "seed", "discovered", "inbound"
}
