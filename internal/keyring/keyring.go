// Package keyring manages the single BIP-32 extended private key backing
// both chains this swap protocol touches: a Bitcoin BIP-84 key and an
// Ethereum key derived by re-interpreting that same Bitcoin key's raw
// secret.
package keyring

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"

	"github.com/0x330a-public/gauloi-go/internal/offer"
)

const keyFileName = "hotwallet.key"

// BTC derivation path: m/84'/0'/1'/0/0 (BIP-84, account 1, external, index 0).
const (
	purposeBIP84  = 84
	coinTypeBTC   = 0
	accountOffset = 1
)

// Keyring holds the single master extended key and caches the derived
// BTC key; the ETH key is rebuilt from that cached key on each call.
type Keyring struct {
	master *hdkeychain.ExtendedKey
	btcKey *btcec.PrivateKey
}

// GenerateMnemonic produces a new 24-word BIP-39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// Load reads the extended key from dataDir/hotwallet.key, generating and
// persisting a fresh one from pure randomness if no file exists.
func Load(dataDir string) (*Keyring, error) {
	path := filepath.Join(dataDir, keyFileName)

	raw, err := os.ReadFile(path)
	if err == nil {
		master, err := hdkeychain.NewKeyFromString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse stored extended key: %w", err)
		}
		return newFromMaster(master)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return newAndPersist(dataDir, seed)
}

// LoadFromMnemonic derives the extended key from a BIP-39 mnemonic
// instead of pure randomness, persisting it the same way Load does.
func LoadFromMnemonic(dataDir, mnemonic, passphrase string) (*Keyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return newAndPersist(dataDir, seed)
}

func newAndPersist(dataDir string, seed []byte) (*Keyring, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	serialized := master.String()
	if err := os.WriteFile(filepath.Join(dataDir, keyFileName), []byte(serialized), 0600); err != nil {
		return nil, fmt.Errorf("persist key file: %w", err)
	}

	return newFromMaster(master)
}

func newFromMaster(master *hdkeychain.ExtendedKey) (*Keyring, error) {
	btcKey, err := deriveBTCKey(master)
	if err != nil {
		return nil, fmt.Errorf("derive btc key: %w", err)
	}
	return &Keyring{master: master, btcKey: btcKey}, nil
}

// deriveBTCKey walks m/84'/0'/1'/0/0.
func deriveBTCKey(master *hdkeychain.ExtendedKey) (*btcec.PrivateKey, error) {
	purposeKey, err := master.Derive(hdkeychain.HardenedKeyStart + purposeBIP84)
	if err != nil {
		return nil, err
	}
	coinKey, err := purposeKey.Derive(hdkeychain.HardenedKeyStart + coinTypeBTC)
	if err != nil {
		return nil, err
	}
	accountKey, err := coinKey.Derive(hdkeychain.HardenedKeyStart + accountOffset)
	if err != nil {
		return nil, err
	}
	changeKey, err := accountKey.Derive(0)
	if err != nil {
		return nil, err
	}
	addressKey, err := changeKey.Derive(0)
	if err != nil {
		return nil, err
	}
	return addressKey.ECPrivKey()
}

// BTCPrivateKey returns the BIP-84 derived Bitcoin signing key.
func (k *Keyring) BTCPrivateKey() *btcec.PrivateKey {
	return k.btcKey
}

// BTCPubkeyHash returns HASH160(compressed pubkey) for the BTC key.
func (k *Keyring) BTCPubkeyHash() offer.Hash20 {
	return offer.Hash20(btcutil.Hash160(k.btcKey.PubKey().SerializeCompressed()))
}

// ETHPrivateKey re-interprets the BTC key's raw 32-byte secret as a
// secp256k1 ECDSA key for Ethereum, per the protocol's single-key design:
// both chains are controlled by the same underlying secret. The raw
// bytes are parsed back into a scalar via decred's secp256k1 package
// first so an out-of-range or zero secret is rejected before it ever
// reaches go-ethereum's ECDSA type.
func (k *Keyring) ETHPrivateKey() (*ecdsa.PrivateKey, error) {
	var raw [32]byte
	copy(raw[:], k.btcKey.Serialize())

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetBytes(&raw); overflow != 0 || scalar.IsZero() {
		return nil, fmt.Errorf("shared secret is not a valid secp256k1 scalar")
	}
	privKey := secp256k1.NewPrivateKey(&scalar)
	return ethcrypto.ToECDSA(privKey.Serialize())
}

// ETHAddress returns the keccak-derived Ethereum account address for the
// shared secret.
func (k *Keyring) ETHAddress() (offer.Hash20, error) {
	ethKey, err := k.ETHPrivateKey()
	if err != nil {
		return offer.Hash20{}, err
	}
	addr := ethcrypto.PubkeyToAddress(ethKey.PublicKey)
	return offer.Hash20(addr), nil
}

// Preimage returns 32 cryptographically random bytes, used by the seller
// to seed a new offer.
func Preimage() (offer.Preimage, error) {
	var p offer.Preimage
	if _, err := rand.Read(p[:]); err != nil {
		return offer.Preimage{}, fmt.Errorf("generate preimage: %w", err)
	}
	return p, nil
}
