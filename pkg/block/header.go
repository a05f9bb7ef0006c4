package block

import (
	"encoding/binary"

	"github.com/crankycoin/crankycoin-go/pkg/crypto"
	"github.com/crankycoin/crankycoin-go/pkg/types"
)

// Header contains block metadata. It is mutable in exactly two fields
// during mining — Timestamp and Nonce — everything else is frozen once
// the block assembler has called RecomputeMerkleRoot.
type Header struct {
	Version      uint32     `json:"version"`
	PreviousHash types.Hash `json:"previous_hash"`
	MerkleRoot   types.Hash `json:"merkle_root"`
	Timestamp    uint64     `json:"timestamp"`
	Nonce        uint64     `json:"nonce"`
}

// Hash computes the block header hash: SHA-256 over the serialized header.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes hashed to produce the header hash.
// Format: version(4) | previous_hash(32) | merkle_root(32) | timestamp(8) | nonce(8)
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 84)
	buf = binary.BigEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PreviousHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.BigEndian.AppendUint64(buf, h.Nonce)
	return buf
}

// HashDifficulty is the count of leading '0' hex characters of the header
// hash — this node's proof-of-work metric.
func (h *Header) HashDifficulty() int {
	return LeadingZeroHexChars(h.Hash())
}

// MeetsDifficulty reports whether the header's hash satisfies a required
// leading-zero hex count.
func (h *Header) MeetsDifficulty(required int) bool {
	return h.HashDifficulty() >= required
}

// LeadingZeroHexChars counts the leading '0' hex characters of a hash.
// Exported so consensus code can evaluate a candidate hash without
// re-deriving it from a full header.
func LeadingZeroHexChars(hash types.Hash) int {
	s := hash.String()
	count := 0
	for count < len(s) && s[count] == '0' {
		count++
	}
	return count
}
