package keyring

import (
	"os"
	"path/filepath"
	"testing"
)

// Test mnemonic (DO NOT USE FOR REAL FUNDS)
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}
	if len(mnemonic) == 0 {
		t.Fatal("expected non-empty mnemonic")
	}
}

func TestLoadGeneratesAndPersists(t *testing.T) {
	dir, err := os.MkdirTemp("", "keyring-test")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir)

	kr1, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, keyFileName)); err != nil {
		t.Fatalf("expected key file to be persisted: %v", err)
	}

	kr2, err := Load(dir)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	if kr1.BTCPubkeyHash() != kr2.BTCPubkeyHash() {
		t.Error("reloading the same key file should reproduce the same BTC pubkey hash")
	}
}

func TestLoadFromMnemonicDeterministic(t *testing.T) {
	dir1, err := os.MkdirTemp("", "keyring-test-1")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir1)
	dir2, err := os.MkdirTemp("", "keyring-test-2")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir2)

	kr1, err := LoadFromMnemonic(dir1, testMnemonic, "")
	if err != nil {
		t.Fatalf("LoadFromMnemonic() error = %v", err)
	}
	kr2, err := LoadFromMnemonic(dir2, testMnemonic, "")
	if err != nil {
		t.Fatalf("LoadFromMnemonic() error = %v", err)
	}

	if kr1.BTCPubkeyHash() != kr2.BTCPubkeyHash() {
		t.Error("same mnemonic should derive the same BTC pubkey hash")
	}
}

func TestETHAddressDerivedFromSharedSecret(t *testing.T) {
	dir, err := os.MkdirTemp("", "keyring-test-eth")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}
	defer os.RemoveAll(dir)

	kr, err := LoadFromMnemonic(dir, testMnemonic, "")
	if err != nil {
		t.Fatalf("LoadFromMnemonic() error = %v", err)
	}

	ethKey, err := kr.ETHPrivateKey()
	if err != nil {
		t.Fatalf("ETHPrivateKey() error = %v", err)
	}
	if ethKey.D.Cmp(kr.BTCPrivateKey().ToECDSA().D) != 0 {
		t.Error("ETH key should reuse the BTC key's raw secret")
	}

	addr, err := kr.ETHAddress()
	if err != nil {
		t.Fatalf("ETHAddress() error = %v", err)
	}
	var zero [20]byte
	if [20]byte(addr) == zero {
		t.Error("expected non-zero ETH address")
	}
}

func TestPreimageIsRandomAndNonZero(t *testing.T) {
	p1, err := Preimage()
	if err != nil {
		t.Fatalf("Preimage() error = %v", err)
	}
	p2, err := Preimage()
	if err != nil {
		t.Fatalf("Preimage() error = %v", err)
	}
	if p1 == p2 {
		t.Error("two preimages should not collide")
	}
	var zero [32]byte
	if [32]byte(p1) == zero {
		t.Error("preimage should not be all-zero")
	}
}
