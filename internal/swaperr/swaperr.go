// Package swaperr defines the tagged error variants the swap core can raise.
//
// The original source distinguishes transient chain-adapter failures from
// protocol-violation failures using two separate error hierarchies (boxed
// dynamic errors and a typed enum). We unify both under these sentinel
// values so callers can classify any error from the core with a single
// errors.Is check.
package swaperr

import "errors"

var (
	// ErrInsufficientFunds is returned when the seller lacks BTC UTXOs to
	// fund the HTLC.
	ErrInsufficientFunds = errors.New("insufficient funds to fund HTLC")

	// ErrMissingRequest is returned when an OfferResponse is imported
	// without a matching locally-stored OfferRequest.
	ErrMissingRequest = errors.New("no matching offer request stored locally")

	// ErrMissingPreimage is returned when the seller's local store has no
	// preimage for the offer being claimed.
	ErrMissingPreimage = errors.New("preimage not found in local store")

	// ErrMismatchedCommitment is returned when an on-chain ETH swap exists
	// for a preimage_hash with a value different from the offer, and when
	// an imported offer response's version or amounts do not match the
	// stored request.
	ErrMismatchedCommitment = errors.New("on-chain ETH commitment value does not match offer")

	// ErrPreimageNotRevealed is returned when stage 4 (BTC claim) is
	// invoked before the preimage has appeared on-chain.
	ErrPreimageNotRevealed = errors.New("preimage not yet revealed on-chain")

	// ErrChainBackoff is returned once a polling stage exhausts its retry
	// ceiling without observing the expected on-chain state.
	ErrChainBackoff = errors.New("chain adapter did not converge before retry ceiling")

	// ErrIndexOutOfRange is returned when an offer lookup by local index
	// fails.
	ErrIndexOutOfRange = errors.New("offer index out of range")

	// ErrUnsafeTimelock is returned when an OfferResponse's lockup_eth is
	// not strictly less than the request's lockup_btc. The original never
	// enforces this; we reject it at response-accept time per the spec.
	ErrUnsafeTimelock = errors.New("lockup_eth must be strictly less than lockup_btc")
)
