package btctx

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/0x330a-public/gauloi-go/internal/btcchain"
	"github.com/0x330a-public/gauloi-go/internal/offer"
)

func TestBuildFundingTxProducesSpendableWitnesses(t *testing.T) {
	signerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new signer key: %v", err)
	}

	changeHash := btcutil.Hash160(signerKey.PubKey().SerializeCompressed())
	changeAddr, err := btcutil.NewAddressWitnessPubKeyHash(changeHash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("change address: %v", err)
	}

	htlcScript, err := offer.BuildScript(fixedHash32(0x01), fixedHash20(0x02), fixedHash20(0x03), 10)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	utxos := []btcchain.UTXO{
		{TxID: "11" + zeroPad62, Vout: 0, Value: 100000},
	}

	tx, err := BuildFundingTx(utxos, signerKey, changeAddr, htlcScript, 90000, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("build funding tx: %v", err)
	}
	if tx.Version != 1 {
		t.Fatalf("version = %d, want 1", tx.Version)
	}
	if len(tx.TxOut) != 2 { // htlc output + change
		t.Fatalf("len(TxOut) = %d, want 2", len(tx.TxOut))
	}
	if tx.TxOut[0].Value != 90000 {
		t.Fatalf("TxOut[0].Value = %d, want 90000", tx.TxOut[0].Value)
	}
	wantChange := int64(100000 - 90000 - DefaultMinerFee)
	if tx.TxOut[1].Value != wantChange {
		t.Fatalf("TxOut[1].Value = %d, want %d", tx.TxOut[1].Value, wantChange)
	}

	inputPkScript, err := txscript.PayToAddrScript(changeAddr)
	if err != nil {
		t.Fatalf("input pkscript: %v", err)
	}
	// reuse the same address/script for the funded input in this fixture
	vm, err := txscript.NewEngine(inputPkScript, tx, 0, txscript.StandardVerifyFlags, nil, nil, 100000,
		txscript.NewCannedPrevOutputFetcher(inputPkScript, 100000))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestBuildClaimTxSpendsHTLC(t *testing.T) {
	buyerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new buyer key: %v", err)
	}
	sellerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new seller key: %v", err)
	}
	destKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new dest key: %v", err)
	}

	preimage := sha256.Sum256([]byte("shared-secret"))
	preimageHash := sha256.Sum256(preimage[:])

	buyerPubkeyHash := offer.Hash20(btcutil.Hash160(buyerKey.PubKey().SerializeCompressed()))
	sellerPubkeyHash := offer.Hash20(btcutil.Hash160(sellerKey.PubKey().SerializeCompressed()))

	htlcScript, err := offer.BuildScript(offer.Hash32(preimageHash), buyerPubkeyHash, sellerPubkeyHash, 10)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	destHash := btcutil.Hash160(destKey.PubKey().SerializeCompressed())
	destAddr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("dest address: %v", err)
	}

	const fundingAmount = 50000
	utxos := []btcchain.UTXO{
		{TxID: "22" + zeroPad62, Vout: 0, Value: fundingAmount},
	}
	tx, err := BuildClaimTx(utxos, htlcScript, offer.Preimage(preimage), buyerKey, destAddr)
	if err != nil {
		t.Fatalf("build claim tx: %v", err)
	}
	if tx.Version != 1 {
		t.Fatalf("version = %d, want 1", tx.Version)
	}
	if tx.TxOut[0].Value != int64(fundingAmount-DefaultMinerFee) {
		t.Fatalf("TxOut[0].Value = %d, want %d", tx.TxOut[0].Value, fundingAmount-DefaultMinerFee)
	}

	htlcAddr, err := offer.P2WSHAddress(htlcScript, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("htlc address: %v", err)
	}
	htlcPkScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		t.Fatalf("htlc pkscript: %v", err)
	}

	vm, err := txscript.NewEngine(htlcPkScript, tx, 0, txscript.StandardVerifyFlags, nil, nil, fundingAmount,
		txscript.NewCannedPrevOutputFetcher(htlcPkScript, fundingAmount))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestBuildClaimTxSpendsMultipleHTLCOutputsWithOneFee(t *testing.T) {
	buyerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new buyer key: %v", err)
	}
	sellerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new seller key: %v", err)
	}
	destKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new dest key: %v", err)
	}

	preimage := sha256.Sum256([]byte("shared-secret-2"))
	preimageHash := sha256.Sum256(preimage[:])

	buyerPubkeyHash := offer.Hash20(btcutil.Hash160(buyerKey.PubKey().SerializeCompressed()))
	sellerPubkeyHash := offer.Hash20(btcutil.Hash160(sellerKey.PubKey().SerializeCompressed()))

	htlcScript, err := offer.BuildScript(offer.Hash32(preimageHash), buyerPubkeyHash, sellerPubkeyHash, 10)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	destHash := btcutil.Hash160(destKey.PubKey().SerializeCompressed())
	destAddr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("dest address: %v", err)
	}

	const valueEach = 30000
	utxos := []btcchain.UTXO{
		{TxID: "44" + zeroPad62, Vout: 0, Value: valueEach},
		{TxID: "55" + zeroPad62, Vout: 1, Value: valueEach},
	}
	tx, err := BuildClaimTx(utxos, htlcScript, offer.Preimage(preimage), buyerKey, destAddr)
	if err != nil {
		t.Fatalf("build claim tx: %v", err)
	}
	if len(tx.TxIn) != 2 {
		t.Fatalf("len(TxIn) = %d, want 2", len(tx.TxIn))
	}
	want := int64(2*valueEach - DefaultMinerFee)
	if tx.TxOut[0].Value != want {
		t.Fatalf("TxOut[0].Value = %d, want %d (single fee across both inputs)", tx.TxOut[0].Value, want)
	}

	htlcAddr, err := offer.P2WSHAddress(htlcScript, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("htlc address: %v", err)
	}
	htlcPkScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		t.Fatalf("htlc pkscript: %v", err)
	}

	for i := range tx.TxIn {
		vm, err := txscript.NewEngine(htlcPkScript, tx, i, txscript.StandardVerifyFlags, nil, nil, valueEach,
			txscript.NewCannedPrevOutputFetcher(htlcPkScript, valueEach))
		if err != nil {
			t.Fatalf("new engine input %d: %v", i, err)
		}
		if err := vm.Execute(); err != nil {
			t.Fatalf("execute input %d: %v", i, err)
		}
	}
}

func TestBuildRefundTxSpendsHTLC(t *testing.T) {
	buyerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new buyer key: %v", err)
	}
	sellerKey, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("new seller key: %v", err)
	}

	buyerPubkeyHash := offer.Hash20(btcutil.Hash160(buyerKey.PubKey().SerializeCompressed()))
	sellerPubkeyHash := offer.Hash20(btcutil.Hash160(sellerKey.PubKey().SerializeCompressed()))

	const lockupBTC = 10
	htlcScript, err := offer.BuildScript(fixedHash32(0x09), buyerPubkeyHash, sellerPubkeyHash, lockupBTC)
	if err != nil {
		t.Fatalf("build script: %v", err)
	}

	destHash := btcutil.Hash160(sellerKey.PubKey().SerializeCompressed())
	destAddr, err := btcutil.NewAddressWitnessPubKeyHash(destHash, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("dest address: %v", err)
	}

	const fundingAmount = 50000
	utxos := []btcchain.UTXO{
		{TxID: "33" + zeroPad62, Vout: 0, Value: fundingAmount},
	}
	tx, err := BuildRefundTx(utxos, htlcScript, lockupBTC, sellerKey, destAddr)
	if err != nil {
		t.Fatalf("build refund tx: %v", err)
	}
	if tx.Version != 2 {
		t.Fatalf("version = %d, want 2", tx.Version)
	}
	if tx.TxIn[0].Sequence != uint32(lockupBTC) {
		t.Fatalf("Sequence = %d, want %d", tx.TxIn[0].Sequence, lockupBTC)
	}

	htlcAddr, err := offer.P2WSHAddress(htlcScript, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("htlc address: %v", err)
	}
	htlcPkScript, err := txscript.PayToAddrScript(htlcAddr)
	if err != nil {
		t.Fatalf("htlc pkscript: %v", err)
	}

	vm, err := txscript.NewEngine(htlcPkScript, tx, 0, txscript.StandardVerifyFlags, nil, nil, fundingAmount,
		txscript.NewCannedPrevOutputFetcher(htlcPkScript, fundingAmount))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := vm.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

var zeroPad62 = strings.Repeat("0", 62)

func fixedHash20(b byte) offer.Hash20 {
	var h offer.Hash20
	for i := range h {
		h[i] = b
	}
	return h
}

func fixedHash32(b byte) offer.Hash32 {
	var h offer.Hash32
	for i := range h {
		h[i] = b
	}
	return h
}
