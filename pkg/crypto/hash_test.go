package crypto

import (
	"crypto/sha256"
	"testing"

	"github.com/crankycoin/crankycoin-go/pkg/types"
)

func sha256Hash(t *testing.T, s string) types.Hash {
	t.Helper()
	return sha256.Sum256([]byte(s))
}

func TestHashMatchesSHA256(t *testing.T) {
	tests := []string{"", "abc", "crankycoin"}
	for _, in := range tests {
		got := Hash([]byte(in))
		want := sha256Hash(t, in)
		if got != want {
			t.Errorf("Hash(%q) = %x, want %x", in, got, want)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	data := []byte("deterministic test input")
	if Hash(data) != Hash(data) {
		t.Error("Hash is not deterministic")
	}
}

func TestHashDifferentInputs(t *testing.T) {
	if Hash([]byte("input A")) == Hash([]byte("input B")) {
		t.Error("different inputs produced the same hash")
	}
}

func TestDoubleHash(t *testing.T) {
	input := []byte("hello")
	got := DoubleHash(input)
	first := sha256.Sum256(input)
	want := sha256.Sum256(first[:])
	if got != types.Hash(want) {
		t.Errorf("DoubleHash(%q) = %x, want %x", input, got, want)
	}
}

func TestDoubleHashNotSameAsHash(t *testing.T) {
	data := []byte("test data")
	if Hash(data) == DoubleHash(data) {
		t.Error("DoubleHash should not equal single Hash")
	}
}

func TestHashConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))
	result := HashConcat(a, b)

	if result == (types.Hash{}) {
		t.Error("HashConcat returned zero hash")
	}
	if reversed := HashConcat(b, a); result == reversed {
		t.Error("HashConcat(a,b) should differ from HashConcat(b,a)")
	}
	if again := HashConcat(a, b); result != again {
		t.Error("HashConcat is not deterministic")
	}
}

func TestHashConcatEqualsManualConcat(t *testing.T) {
	a := Hash([]byte("left"))
	b := Hash([]byte("right"))

	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	want := Hash(buf[:])

	if got := HashConcat(a, b); got != want {
		t.Errorf("HashConcat = %x, want %x", got, want)
	}
}
