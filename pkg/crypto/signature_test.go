package crypto

import (
	"bytes"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if len(key.PublicKey()) != 33 {
		t.Errorf("PublicKey() length = %d, want 33", len(key.PublicKey()))
	}
	if len(key.Serialize()) != 32 {
		t.Errorf("Serialize() length = %d, want 32", len(key.Serialize()))
	}
}

func TestGenerateKeyUnique(t *testing.T) {
	k1, _ := GenerateKey()
	k2, _ := GenerateKey()
	if bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("two generated keys should not be identical")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	original, _ := GenerateKey()
	restored, err := PrivateKeyFromBytes(original.Serialize())
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}
}

func TestPrivateKeyFromBytesInvalidLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 16)},
		{"too long", make([]byte, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PrivateKeyFromBytes(tt.data); err == nil {
				t.Error("expected error for invalid key length")
			}
		})
	}
}

func TestSignVerify(t *testing.T) {
	key, _ := GenerateKey()
	hash := Hash([]byte("test message"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(sig) == 0 || len(sig) > 72 {
		t.Errorf("unexpected DER signature length: %d", len(sig))
	}
	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("signature should verify against the correct key and hash")
	}
}

func TestSignDeterministic(t *testing.T) {
	key, _ := GenerateKey()
	hash := Hash([]byte("deterministic test"))
	sig1, _ := key.Sign(hash[:])
	sig2, _ := key.Sign(hash[:])
	if !bytes.Equal(sig1, sig2) {
		t.Error("RFC6979 ECDSA signatures should be deterministic (same key + same hash = same sig)")
	}
}

func TestSignInvalidHashLength(t *testing.T) {
	key, _ := GenerateKey()
	if _, err := key.Sign([]byte("too short")); err == nil {
		t.Error("Sign() should reject non-32-byte hash")
	}
}

func TestVerifyWrongHash(t *testing.T) {
	key, _ := GenerateKey()
	hash := Hash([]byte("message"))
	sig, _ := key.Sign(hash[:])
	wrongHash := Hash([]byte("different message"))
	if VerifySignature(wrongHash[:], sig, key.PublicKey()) {
		t.Error("signature should not verify with wrong hash")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()
	hash := Hash([]byte("message"))
	sig, _ := key1.Sign(hash[:])
	if VerifySignature(hash[:], sig, key2.PublicKey()) {
		t.Error("signature should not verify with wrong public key")
	}
}

func TestVerifyCorruptedSignature(t *testing.T) {
	key, _ := GenerateKey()
	hash := Hash([]byte("message"))
	sig, _ := key.Sign(hash[:])
	corrupted := make([]byte, len(sig))
	copy(corrupted, sig)
	corrupted[len(corrupted)-1] ^= 0x01
	if VerifySignature(hash[:], corrupted, key.PublicKey()) {
		t.Error("corrupted signature should not verify")
	}
}

func TestVerifyInvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		hash      []byte
		signature []byte
		publicKey []byte
	}{
		{"nil hash", nil, make([]byte, 64), make([]byte, 33)},
		{"empty signature", make([]byte, 32), nil, make([]byte, 33)},
		{"empty public key", make([]byte, 32), make([]byte, 64), nil},
		{"short signature", make([]byte, 32), make([]byte, 10), make([]byte, 33)},
		{"garbage public key", make([]byte, 32), make([]byte, 64), []byte("bad")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.hash, tt.signature, tt.publicKey) {
				t.Error("should return false for invalid inputs")
			}
		})
	}
}

func TestPrivateKeyZero(t *testing.T) {
	key, _ := GenerateKey()
	hash := Hash([]byte("test"))
	if _, err := key.Sign(hash[:]); err != nil {
		t.Fatalf("Sign() should work before Zero(): %v", err)
	}
	key.Zero()
	for _, b := range key.Serialize() {
		if b != 0 {
			t.Error("Serialize() should return zeros after Zero()")
			break
		}
	}
}

func TestPrivateKeySignVerifyRoundtrip(t *testing.T) {
	original, _ := GenerateKey()
	pubKey := original.PublicKey()
	privBytes := original.Serialize()

	restored, err := PrivateKeyFromBytes(privBytes)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	hash := Hash([]byte("roundtrip test"))
	sig, err := restored.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !VerifySignature(hash[:], sig, pubKey) {
		t.Error("roundtrip: signature from restored key should verify with original pubkey")
	}
}

func TestECDSAVerifierInterface(t *testing.T) {
	var v Verifier = ECDSAVerifier{}
	key, _ := GenerateKey()
	hash := Hash([]byte("interface test"))
	sig, _ := key.Sign(hash[:])
	if !v.Verify(hash[:], sig, key.PublicKey()) {
		t.Error("ECDSAVerifier should verify valid signature")
	}
}

func TestPrivateKeySignerInterface(t *testing.T) {
	var s Signer
	key, _ := GenerateKey()
	s = key
	hash := Hash([]byte("signer interface test"))
	sig, err := s.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !VerifySignature(hash[:], sig, s.PublicKey()) {
		t.Error("Signer interface: signature should verify")
	}
}
