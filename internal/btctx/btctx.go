// Package btctx builds and signs the three Bitcoin transactions the swap
// protocol needs: the HTLC funding transaction, the buyer's claim
// transaction, and the seller's refund transaction.
package btctx

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/0x330a-public/gauloi-go/internal/btcchain"
	"github.com/0x330a-public/gauloi-go/internal/offer"
	"github.com/0x330a-public/gauloi-go/internal/swaperr"
)

// DefaultMinerFee is the fixed miner fee, in satoshis, that the funding,
// claim and refund builders all deduct. The protocol does not do dynamic
// fee estimation (spec §4.C Non-goals).
const DefaultMinerFee = 1200

const dustThreshold = 546

// BuildFundingTx spends utxos (all P2WPKH, controlled by signerKey) into
// the HTLC's P2WSH output plus a change output back to changeAddress; the
// change output is left out when it would be at or below the dust
// threshold. Signing goes through a PSBT whose Bip32Derivation entry holds
// only the signer's public key, with no master fingerprint and no
// derivation path; only a single local key ever signs here.
func BuildFundingTx(
	utxos []btcchain.UTXO,
	signerKey *btcec.PrivateKey,
	changeAddress btcutil.Address,
	htlcScript []byte,
	swapAmount uint64,
	params *chaincfg.Params,
) (*wire.MsgTx, error) {
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: no utxos supplied", swaperr.ErrInsufficientFunds)
	}

	htlcAddr, err := offer.P2WSHAddress(htlcScript, params)
	if err != nil {
		return nil, fmt.Errorf("derive htlc address: %w", err)
	}
	htlcPkScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		return nil, fmt.Errorf("htlc pkscript: %w", err)
	}
	changePkScript, err := txscript.PayToAddrScript(changeAddress)
	if err != nil {
		return nil, fmt.Errorf("change pkscript: %w", err)
	}

	tx := wire.NewMsgTx(1)
	var totalInput uint64
	prevScripts := make([][]byte, len(utxos))
	prevValues := make([]int64, len(utxos))

	for i, u := range utxos {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %q: %w", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: *txHash, Index: u.Vout}, nil, nil))
		totalInput += u.Value

		pubKeyHash := btcutil.Hash160(signerKey.PubKey().SerializeCompressed())
		addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, params)
		if err != nil {
			return nil, fmt.Errorf("derive input address: %w", err)
		}
		pkScript, err := txscript.PayToAddrScript(addr)
		if err != nil {
			return nil, fmt.Errorf("input pkscript: %w", err)
		}
		prevScripts[i] = pkScript
		prevValues[i] = int64(u.Value)
	}

	tx.AddTxOut(wire.NewTxOut(int64(swapAmount), htlcPkScript))

	total := swapAmount + DefaultMinerFee
	if totalInput < total {
		return nil, fmt.Errorf("%w: need %d, have %d", swaperr.ErrInsufficientFunds, total, totalInput)
	}
	change := totalInput - total
	if change > dustThreshold {
		tx.AddTxOut(wire.NewTxOut(int64(change), changePkScript))
	}

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("build psbt: %w", err)
	}
	for i := range packet.Inputs {
		packet.Inputs[i].WitnessUtxo = &wire.TxOut{Value: prevValues[i], PkScript: prevScripts[i]}
		packet.Inputs[i].Bip32Derivation = []*psbt.Bip32Derivation{{
			PubKey: signerKey.PubKey().SerializeCompressed(),
		}}
	}

	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, allPrevOutputFetcher(packet.UnsignedTx, prevScripts, prevValues))
	for i := range packet.Inputs {
		sigHash, err := txscript.CalcWitnessSigHash(
			prevScripts[i], sigHashes, txscript.SigHashAll, packet.UnsignedTx, i, prevValues[i],
		)
		if err != nil {
			return nil, fmt.Errorf("sighash input %d: %w", i, err)
		}
		sig := ecdsa.Sign(signerKey, sigHash)
		sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))
		packet.UnsignedTx.TxIn[i].Witness = wire.TxWitness{sigBytes, signerKey.PubKey().SerializeCompressed()}
	}

	return packet.UnsignedTx, nil
}

// BuildClaimTx spends one or more HTLC funding outputs (all locked by
// the same htlcScript) via the claim (preimage reveal) path, sending
// their combined value minus a single fixed miner fee to destAddress.
func BuildClaimTx(
	utxos []btcchain.UTXO,
	htlcScript []byte,
	preimage offer.Preimage,
	buyerKey *btcec.PrivateKey,
	destAddress btcutil.Address,
) (*wire.MsgTx, error) {
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: no htlc utxos supplied", swaperr.ErrInsufficientFunds)
	}

	totalInput, prevScripts, prevValues, err := htlcPrevOutputs(utxos, htlcScript)
	if err != nil {
		return nil, err
	}
	if totalInput <= DefaultMinerFee {
		return nil, fmt.Errorf("%w: funding amount %d too small for fee", swaperr.ErrInsufficientFunds, totalInput)
	}

	destScript, err := txscript.PayToAddrScript(destAddress)
	if err != nil {
		return nil, fmt.Errorf("dest pkscript: %w", err)
	}

	tx := wire.NewMsgTx(1)
	for _, u := range utxos {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %q: %w", u.TxID, err)
		}
		tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: *txHash, Index: u.Vout}, nil, nil))
	}
	tx.AddTxOut(wire.NewTxOut(int64(totalInput-DefaultMinerFee), destScript))

	sigHashes := txscript.NewTxSigHashes(tx, allPrevOutputFetcher(tx, prevScripts, prevValues))
	for i := range utxos {
		sigHash, err := txscript.CalcWitnessSigHash(htlcScript, sigHashes, txscript.SigHashAll, tx, i, prevValues[i])
		if err != nil {
			return nil, fmt.Errorf("sighash input %d: %w", i, err)
		}
		sig := ecdsa.Sign(buyerKey, sigHash)
		sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))
		tx.TxIn[i].Witness = offer.ClaimWitness(sigBytes, buyerKey.PubKey().SerializeCompressed(), preimage, htlcScript)
	}

	return tx, nil
}

// BuildRefundTx spends one or more HTLC funding outputs (all locked by
// the same htlcScript) via the timeout path after the relative locktime
// matures, sending their combined value minus a single fixed miner fee
// back to destAddress. The transaction is version 2 and the sequence field
// on every input is set to lockupBTC, as required for the
// OP_CHECKSEQUENCEVERIFY branch to validate per BIP-68/BIP-112.
func BuildRefundTx(
	utxos []btcchain.UTXO,
	htlcScript []byte,
	lockupBTC uint8,
	sellerKey *btcec.PrivateKey,
	destAddress btcutil.Address,
) (*wire.MsgTx, error) {
	if len(utxos) == 0 {
		return nil, fmt.Errorf("%w: no htlc utxos supplied", swaperr.ErrInsufficientFunds)
	}

	totalInput, prevScripts, prevValues, err := htlcPrevOutputs(utxos, htlcScript)
	if err != nil {
		return nil, err
	}
	if totalInput <= DefaultMinerFee {
		return nil, fmt.Errorf("%w: funding amount %d too small for fee", swaperr.ErrInsufficientFunds, totalInput)
	}

	destScript, err := txscript.PayToAddrScript(destAddress)
	if err != nil {
		return nil, fmt.Errorf("dest pkscript: %w", err)
	}

	tx := wire.NewMsgTx(2)
	for _, u := range utxos {
		txHash, err := chainhash.NewHashFromStr(u.TxID)
		if err != nil {
			return nil, fmt.Errorf("invalid utxo txid %q: %w", u.TxID, err)
		}
		txIn := wire.NewTxIn(&wire.OutPoint{Hash: *txHash, Index: u.Vout}, nil, nil)
		txIn.Sequence = uint32(lockupBTC)
		tx.AddTxIn(txIn)
	}
	tx.AddTxOut(wire.NewTxOut(int64(totalInput-DefaultMinerFee), destScript))

	sigHashes := txscript.NewTxSigHashes(tx, allPrevOutputFetcher(tx, prevScripts, prevValues))
	for i := range utxos {
		sigHash, err := txscript.CalcWitnessSigHash(htlcScript, sigHashes, txscript.SigHashAll, tx, i, prevValues[i])
		if err != nil {
			return nil, fmt.Errorf("sighash input %d: %w", i, err)
		}
		sig := ecdsa.Sign(sellerKey, sigHash)
		sigBytes := append(sig.Serialize(), byte(txscript.SigHashAll))
		tx.TxIn[i].Witness = offer.RefundWitness(sigBytes, sellerKey.PubKey().SerializeCompressed(), htlcScript)
	}

	return tx, nil
}

// htlcPrevOutputs sums utxos' values and builds the parallel
// script/value slices BIP-143 sighash computation needs, assuming every
// utxo is locked by the same htlcScript.
func htlcPrevOutputs(utxos []btcchain.UTXO, htlcScript []byte) (uint64, [][]byte, []int64, error) {
	var total uint64
	scripts := make([][]byte, len(utxos))
	values := make([]int64, len(utxos))
	for i, u := range utxos {
		total += u.Value
		scripts[i] = htlcScript
		values[i] = int64(u.Value)
	}
	return total, scripts, values, nil
}

// allPrevOutputFetcher builds a canned previous-output fetcher for
// BIP-143 sighash computation across one or more inputs of tx, keyed by
// each input's previous outpoint.
func allPrevOutputFetcher(tx *wire.MsgTx, scripts [][]byte, values []int64) txscript.PrevOutputFetcher {
	outputs := make(map[wire.OutPoint]*wire.TxOut, len(scripts))
	for i := range scripts {
		outputs[tx.TxIn[i].PreviousOutPoint] = &wire.TxOut{Value: values[i], PkScript: scripts[i]}
	}
	return txscript.NewMultiPrevOutFetcher(outputs)
}
