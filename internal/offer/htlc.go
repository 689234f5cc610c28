package offer

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// HTLCBranch selects which spending path a witness exercises.
type HTLCBranch byte

const (
	// BranchClaim selects the OP_IF (preimage reveal) path.
	BranchClaim HTLCBranch = 0x01
	// BranchRefund selects the OP_ELSE (timeout) path.
	BranchRefund HTLCBranch = 0x00
)

// BuildScript constructs the fixed HTLC witness script template:
//
//	OP_IF
//	    OP_SHA256 <preimageHash> OP_EQUALVERIFY
//	    OP_DUP OP_HASH160 <buyerPubkeyHash>
//	OP_ELSE
//	    <lockupBTC> OP_CSV OP_DROP
//	    OP_DUP OP_HASH160 <sellerPubkeyHash>
//	OP_ENDIF
//	OP_EQUALVERIFY OP_CHECKSIG
//
// Claim path (OP_IF): buyer reveals the preimage and signs with the key
// behind buyerPubkeyHash. Refund path (OP_ELSE): after lockupBTC blocks,
// seller spends with their signature. Grounded on the teacher's
// txscript.NewScriptBuilder idiom (internal/swap/htlc_script.go), with
// the spec's pubkey-hash-based branches rather than raw-pubkey
// OP_CHECKSIG.
func BuildScript(preimageHash Hash32, buyerPubkeyHash, sellerPubkeyHash Hash20, lockupBTC uint8) ([]byte, error) {
	if lockupBTC == 0 {
		return nil, fmt.Errorf("lockup_btc must be greater than 0")
	}

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(preimageHash[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(buyerPubkeyHash[:])
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(lockupBTC))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(sellerPubkeyHash[:])
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// ScriptForOffer builds the HTLC script parameterized by an Offer's
// fields.
func ScriptForOffer(o Offer) ([]byte, error) {
	return BuildScript(o.PreimageHash, o.BuyerPubkeyHash, o.SellerPubkeyHash, o.LockupBTC)
}

// P2WSHAddress derives the v0 P2WSH address for the given HTLC script.
func P2WSHAddress(script []byte, params *chaincfg.Params) (btcutil.Address, error) {
	scriptHash := sha256.Sum256(script)
	return btcutil.NewAddressWitnessScriptHash(scriptHash[:], params)
}

// ClaimWitness builds the witness stack for the claim (preimage reveal)
// path: <sig> <pubkey> <preimage> 0x01 <script>.
func ClaimWitness(sig, pubkey []byte, preimage Preimage, script []byte) [][]byte {
	return [][]byte{
		sig,
		pubkey,
		preimage[:],
		{byte(BranchClaim)},
		script,
	}
}

// RefundWitness builds the witness stack for the timeout path:
// <sig> <pubkey> 0x00 <script>.
func RefundWitness(sig, pubkey []byte, script []byte) [][]byte {
	return [][]byte{
		sig,
		pubkey,
		{byte(BranchRefund)},
		script,
	}
}

// ParseScript parses an HTLC script back into its components, used by
// the property tests that require byte-identical round trips.
func ParseScript(script []byte) (preimageHash, buyerPubkeyHash, sellerPubkeyHash []byte, lockupBTC uint8, err error) {
	tok := txscript.MakeScriptTokenizer(0, script)

	next := func(op byte) ([]byte, error) {
		if !tok.Next() {
			return nil, fmt.Errorf("unexpected end of script, wanted opcode 0x%02x", op)
		}
		if tok.Opcode() != op {
			return nil, fmt.Errorf("expected opcode 0x%02x, got 0x%02x", op, tok.Opcode())
		}
		return tok.Data(), nil
	}

	if _, err = next(txscript.OP_IF); err != nil {
		return
	}
	if _, err = next(txscript.OP_SHA256); err != nil {
		return
	}
	if !tok.Next() {
		err = fmt.Errorf("expected preimage hash")
		return
	}
	preimageHash = tok.Data()
	if len(preimageHash) != 32 {
		err = fmt.Errorf("preimage hash must be 32 bytes, got %d", len(preimageHash))
		return
	}
	if _, err = next(txscript.OP_EQUALVERIFY); err != nil {
		return
	}
	if _, err = next(txscript.OP_DUP); err != nil {
		return
	}
	if _, err = next(txscript.OP_HASH160); err != nil {
		return
	}
	if !tok.Next() {
		err = fmt.Errorf("expected buyer pubkey hash")
		return
	}
	buyerPubkeyHash = tok.Data()
	if len(buyerPubkeyHash) != 20 {
		err = fmt.Errorf("buyer pubkey hash must be 20 bytes, got %d", len(buyerPubkeyHash))
		return
	}
	if _, err = next(txscript.OP_ELSE); err != nil {
		return
	}

	if !tok.Next() {
		err = fmt.Errorf("expected lockup_btc")
		return
	}
	if txscript.IsSmallInt(tok.Opcode()) {
		lockupBTC = uint8(txscript.AsSmallInt(tok.Opcode()))
	} else {
		data := tok.Data()
		switch {
		case len(data) == 1:
		case len(data) == 2 && data[0] >= 0x80 && data[1] == 0x00:
			// 128..255 are pushed as two bytes: the value plus a 0x00 sign byte.
		default:
			err = fmt.Errorf("lockup_btc must encode to a value in 1..255, got %d bytes", len(data))
			return
		}
		lockupBTC = data[0]
	}
	if _, err = next(txscript.OP_CHECKSEQUENCEVERIFY); err != nil {
		return
	}
	if _, err = next(txscript.OP_DROP); err != nil {
		return
	}
	if _, err = next(txscript.OP_DUP); err != nil {
		return
	}
	if _, err = next(txscript.OP_HASH160); err != nil {
		return
	}
	if !tok.Next() {
		err = fmt.Errorf("expected seller pubkey hash")
		return
	}
	sellerPubkeyHash = tok.Data()
	if len(sellerPubkeyHash) != 20 {
		err = fmt.Errorf("seller pubkey hash must be 20 bytes, got %d", len(sellerPubkeyHash))
		return
	}
	if _, err = next(txscript.OP_ENDIF); err != nil {
		return
	}
	if _, err = next(txscript.OP_EQUALVERIFY); err != nil {
		return
	}
	if _, err = next(txscript.OP_CHECKSIG); err != nil {
		return
	}

	return preimageHash, buyerPubkeyHash, sellerPubkeyHash, lockupBTC, nil
}
