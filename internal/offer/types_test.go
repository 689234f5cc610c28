package offer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"reflect"
	"testing"

	"github.com/0x330a-public/gauloi-go/internal/swaperr"
)

func fixedHash20(b byte) Hash20 {
	var h Hash20
	for i := range h {
		h[i] = b
	}
	return h
}

func fixedHash32(b byte) Hash32 {
	var h Hash32
	for i := range h {
		h[i] = b
	}
	return h
}

func TestOfferRequestCanonicalRoundTrip(t *testing.T) {
	req := OfferRequest{
		Version:          Version,
		Sold:             U128FromUint64(100000),
		Bought:           U128FromUint64(50000000000),
		LockupBTC:        10,
		SellerPubkeyHash: Hash20{},
		SellerEthAddress: Hash20{},
		PreimageHash:     fixedHash32(0x11),
	}

	bytes1, err := MarshalCanonical(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded OfferRequest
	if err := UnmarshalCanonical(bytes1, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	bytes2, err := MarshalCanonical(decoded)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}

	if !reflect.DeepEqual(bytes1, bytes2) {
		t.Fatalf("canonical round trip must be bit-identical")
	}
	if !reflect.DeepEqual(req, decoded) {
		t.Fatalf("decoded = %+v, want %+v", decoded, req)
	}
}

func TestOfferRequestHexRoundTrip(t *testing.T) {
	req := OfferRequest{
		Version:          0,
		Sold:             U128FromUint64(100000),
		Bought:           U128FromUint64(50000000000),
		LockupBTC:        10,
		SellerPubkeyHash: Hash20{},
		SellerEthAddress: Hash20{},
		PreimageHash:     fixedHash32(0x11),
	}

	b, err := MarshalCanonical(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	h := hex.EncodeToString(b)

	decodedBytes, err := hex.DecodeString(h)
	if err != nil {
		t.Fatalf("hex decode: %v", err)
	}

	var decoded OfferRequest
	if err := UnmarshalCanonical(decodedBytes, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(req, decoded) {
		t.Fatalf("decoded = %+v, want %+v", decoded, req)
	}

	reencoded, err := MarshalCanonical(decoded)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if hex.EncodeToString(reencoded) != h {
		t.Fatalf("reencoded = %s, want %s", hex.EncodeToString(reencoded), h)
	}
}

func TestHashIsStableAcrossEquivalentStructs(t *testing.T) {
	req := OfferRequest{
		Version:          Version,
		Sold:             U128FromUint64(1),
		Bought:           U128FromUint64(2),
		LockupBTC:        5,
		SellerPubkeyHash: fixedHash20(0x01),
		SellerEthAddress: fixedHash20(0x02),
		PreimageHash:     fixedHash32(0x03),
	}

	h1, err := req.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := req.Hash()
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash is not stable: %x != %x", h1, h2)
	}

	b, err := MarshalCanonical(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := sha256.Sum256(b)
	if Hash32(want) != h1 {
		t.Fatalf("hash = %x, want %x", h1, want)
	}
}

func TestNewOfferEnforcesTimelockSafety(t *testing.T) {
	req := OfferRequest{LockupBTC: 10, PreimageHash: fixedHash32(0x01)}

	_, err := NewOffer(req, OfferResponse{LockupETH: 10})
	if !errors.Is(err, swaperr.ErrUnsafeTimelock) {
		t.Fatalf("err = %v, want %v", err, swaperr.ErrUnsafeTimelock)
	}

	offer, err := NewOffer(req, OfferResponse{LockupETH: 9})
	if err != nil {
		t.Fatalf("new offer: %v", err)
	}
	if offer.LockupETH != 9 {
		t.Fatalf("LockupETH = %d, want 9", offer.LockupETH)
	}
	if offer.LockupBTC != 10 {
		t.Fatalf("LockupBTC = %d, want 10", offer.LockupBTC)
	}
}

func TestOfferRoleDetection(t *testing.T) {
	seller := fixedHash20(0xAA)
	buyer := fixedHash20(0xBB)
	o := Offer{SellerPubkeyHash: seller, BuyerPubkeyHash: buyer}

	if !o.IsSeller(seller) {
		t.Fatalf("IsSeller(seller) = false, want true")
	}
	if o.IsSeller(buyer) {
		t.Fatalf("IsSeller(buyer) = true, want false")
	}
	if !o.IsBuyer(buyer) {
		t.Fatalf("IsBuyer(buyer) = false, want true")
	}
	if o.IsBuyer(seller) {
		t.Fatalf("IsBuyer(seller) = true, want false")
	}
}

func TestU128RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 100000, 50000000000, ^uint64(0)}
	for _, v := range cases {
		u := U128FromUint64(v)
		if u.Uint64() != v {
			t.Fatalf("Uint64() = %d, want %d", u.Uint64(), v)
		}

		encoded, err := MarshalCanonical(u)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var decoded U128
		if err := UnmarshalCanonical(encoded, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded != u {
			t.Fatalf("decoded = %+v, want %+v", decoded, u)
		}
	}
}
