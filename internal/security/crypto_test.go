package security

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// ─── Keypair Generation ─────────────────────────────────────────────────────

func TestGenerateKeypair(t *testing.T) {
	kp, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	if len(kp.Public) != 32 {
		t.Errorf("public key len = %d, want 32", len(kp.Public))
	}
	if len(kp.PublicKeyHex()) != 64 {
		t.Errorf("author id len = %d, want 64", len(kp.PublicKeyHex()))
	}
}

func TestKeypairFromSeed_Deterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := KeypairFromSeed(seed)
	if err != nil {
		t.Fatalf("KeypairFromSeed() error: %v", err)
	}
	b, _ := KeypairFromSeed(seed)
	if a.PublicKeyHex() != b.PublicKeyHex() {
		t.Error("same seed should yield the same author id")
	}

	if _, err := KeypairFromSeed([]byte("short")); err == nil {
		t.Error("KeypairFromSeed() with short seed should fail")
	}
}

func TestDecodePublicKey(t *testing.T) {
	kp, _ := GenerateKeypair()
	pub, err := DecodePublicKey(kp.PublicKeyHex())
	if err != nil {
		t.Fatalf("DecodePublicKey() error: %v", err)
	}
	if !bytes.Equal(pub, kp.Public) {
		t.Error("decoded key differs from original")
	}

	for _, bad := range []string{"", "zz", "abcd"} {
		if _, err := DecodePublicKey(bad); err == nil {
			t.Errorf("DecodePublicKey(%q) should fail", bad)
		}
	}
}

// ─── Sign / Verify ──────────────────────────────────────────────────────────

func TestSignVerify(t *testing.T) {
	kp, _ := GenerateKeypair()
	message := []byte("transfer 10 SP")

	sig := kp.Sign(message)
	if !Verify(message, sig, kp.Public) {
		t.Error("Verify() should return true for valid signature")
	}
	if Verify([]byte("transfer 99 SP"), sig, kp.Public) {
		t.Error("Verify() should return false for wrong message")
	}

	other, _ := GenerateKeypair()
	if Verify(message, sig, other.Public) {
		t.Error("Verify() should return false for wrong public key")
	}
}

// ─── Persistence ────────────────────────────────────────────────────────────

func TestLoadOrCreateKeypair_Creates(t *testing.T) {
	home := t.TempDir()
	kp, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair() error: %v", err)
	}
	if kp == nil {
		t.Fatal("LoadOrCreateKeypair() returned nil")
	}

	keyDir := filepath.Join(home, "keys")
	for _, name := range []string{"node.pub", "node.key"} {
		if _, err := os.Stat(filepath.Join(keyDir, name)); os.IsNotExist(err) {
			t.Errorf("%s should exist", name)
		}
	}
}

func TestLoadOrCreateKeypair_Loads(t *testing.T) {
	home := t.TempDir()

	kp1, _ := LoadOrCreateKeypair(home)
	kp2, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair() second call error: %v", err)
	}
	if kp1.PublicKeyHex() != kp2.PublicKeyHex() {
		t.Error("loaded keypair should match created keypair")
	}

	msg := []byte("persistent identity")
	if !Verify(msg, kp1.Sign(msg), kp2.Public) {
		t.Error("signature should verify after reloading keypair")
	}
}
