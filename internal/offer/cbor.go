package offer

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// canonicalEncMode produces the single canonical byte form the spec
// requires for hashing, network exchange, and durable storage: shortest-
// form integers, no indefinite-length items, and — combined with each
// record's `cbor:",toarray"` struct tag — fields serialized positionally
// in declared order rather than as a map keyed by field name.
var canonicalEncMode cbor.EncMode

var canonicalDecMode cbor.DecMode

func init() {
	var err error
	canonicalEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("offer: building canonical CBOR encoder: %v", err))
	}
	canonicalDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("offer: building CBOR decoder: %v", err))
	}
}

// MarshalCanonical returns the canonical CBOR byte form of v.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return canonicalEncMode.Marshal(v)
}

// UnmarshalCanonical decodes canonical CBOR bytes into v.
func UnmarshalCanonical(data []byte, v interface{}) error {
	return canonicalDecMode.Unmarshal(data, v)
}

// sha256Sum returns the SHA-256 digest of b as a Hash32.
func sha256Sum(b []byte) Hash32 {
	return Hash32(sha256.Sum256(b))
}
