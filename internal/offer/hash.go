package offer

import (
	"encoding/hex"
	"fmt"
)

// Hash20 is a 20-byte value: a RIPEMD160(SHA256(pubkey)) pubkey hash or an
// Ethereum account address, both happen to be 20 bytes wide in this
// protocol.
type Hash20 [20]byte

// Hash32 is a 32-byte value: a SHA-256 digest (preimage hash, request
// hash) or a 32-byte preimage itself.
type Hash32 [32]byte

func (h Hash20) String() string { return hex.EncodeToString(h[:]) }
func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether every byte is zero.
func (h Hash32) IsZero() bool {
	for _, b := range h {
		if b != 0 {
			return false
		}
	}
	return true
}

func (h Hash20) MarshalCBOR() ([]byte, error) { return canonicalEncMode.Marshal(h[:]) }
func (h Hash32) MarshalCBOR() ([]byte, error) { return canonicalEncMode.Marshal(h[:]) }

func (h *Hash20) UnmarshalCBOR(data []byte) error {
	raw, err := unmarshalFixed(data, 20)
	if err != nil {
		return fmt.Errorf("hash20: %w", err)
	}
	copy(h[:], raw)
	return nil
}

func (h *Hash32) UnmarshalCBOR(data []byte) error {
	raw, err := unmarshalFixed(data, 32)
	if err != nil {
		return fmt.Errorf("hash32: %w", err)
	}
	copy(h[:], raw)
	return nil
}

func unmarshalFixed(data []byte, n int) ([]byte, error) {
	var raw []byte
	if err := canonicalDecMode.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(raw))
	}
	return raw, nil
}
