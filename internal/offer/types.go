// Package offer defines the swap negotiation records (OfferRequest,
// OfferResponse, Offer) and the Bitcoin HTLC witness script they
// parameterize.
//
// Canonical serialization of every record here is CBOR with fields in
// declared struct order (the `cbor:",toarray"` tag), per the current
// protocol version. That byte form is the sole basis for content
// addressing, on-wire exchange, and durable storage — see RequestHash
// and Hash.
package offer

import "github.com/0x330a-public/gauloi-go/internal/swaperr"

// Version is the current protocol version. Only offer responses are
// checked against it on import (store.AddOfferResponse rejects any other
// value); requests and offers are not version-checked.
const Version uint8 = 0

// OfferRequest is created by the seller of BTC (buyer of ETH) and is
// content-addressable by the SHA-256 of its canonical CBOR bytes.
type OfferRequest struct {
	_ struct{} `cbor:",toarray"`

	Version          uint8
	Sold             U128 // satoshis the creator sells
	Bought           U128 // wei the creator receives
	LockupBTC        uint8
	SellerPubkeyHash Hash20
	SellerEthAddress Hash20
	PreimageHash     Hash32
}

// OfferResponse is constructed by the counterparty (buyer of BTC, seller
// of ETH) against a received OfferRequest.
type OfferResponse struct {
	_ struct{} `cbor:",toarray"`

	Version         uint8
	Sold            U128 // copied from the request; integrity-checked on import
	Bought          U128 // copied from the request; integrity-checked on import
	LockupETH       uint8
	BuyerPubkeyHash Hash20
	BuyerEthAddress Hash20
	RequestHash     Hash32
}

// Offer is the completed record produced by joining an OfferRequest with
// its OfferResponse.
type Offer struct {
	_ struct{} `cbor:",toarray"`

	Version          uint8
	Sold             U128
	Bought           U128
	LockupETH        uint8
	LockupBTC        uint8
	SellerPubkeyHash Hash20
	BuyerPubkeyHash  Hash20
	SellerEthAddress Hash20
	BuyerEthAddress  Hash20
	SwapIDHex        string // empty until the ETH HTLC is created
	PreimageHash     Hash32
	RequestHash      Hash32
}

// Preimage is the 32-byte secret known only to the seller until revealed
// on-chain during the ETH claim step.
type Preimage = Hash32

// Hash returns the SHA-256 of req's canonical CBOR bytes. This is the key
// under which the request, its preimage, and the eventual completed Offer
// are all stored, and is always computed locally from the bytes the
// caller holds — never trusted from a wire-carried hash (see
// OfferResponse.RequestHash verification in the store's
// AddOfferResponse).
func (req OfferRequest) Hash() (Hash32, error) {
	bytes, err := MarshalCanonical(req)
	if err != nil {
		return Hash32{}, err
	}
	return sha256Sum(bytes), nil
}

// IsSeller reports whether identity matches the offer's seller, by either
// BTC pubkey hash or ETH address.
func (o Offer) IsSeller(identity Hash20) bool {
	return o.SellerPubkeyHash == identity || o.SellerEthAddress == identity
}

// IsBuyer reports whether identity matches the offer's buyer, by either
// BTC pubkey hash or ETH address.
func (o Offer) IsBuyer(identity Hash20) bool {
	return o.BuyerPubkeyHash == identity || o.BuyerEthAddress == identity
}

// NewOffer joins a stored OfferRequest with an incoming OfferResponse,
// enforcing the protocol safety invariant lockup_eth < lockup_btc (spec
// §9 Open Question: the original never enforces this; we reject here, at
// response-accept time).
func NewOffer(req OfferRequest, resp OfferResponse) (Offer, error) {
	if resp.LockupETH >= req.LockupBTC {
		return Offer{}, swaperr.ErrUnsafeTimelock
	}
	return Offer{
		Version:          Version,
		Sold:             req.Sold,
		Bought:           req.Bought,
		LockupETH:        resp.LockupETH,
		LockupBTC:        req.LockupBTC,
		SellerPubkeyHash: req.SellerPubkeyHash,
		BuyerPubkeyHash:  resp.BuyerPubkeyHash,
		SellerEthAddress: req.SellerEthAddress,
		BuyerEthAddress:  resp.BuyerEthAddress,
		SwapIDHex:        "",
		PreimageHash:     req.PreimageHash,
		RequestHash:      resp.RequestHash,
	}, nil
}
