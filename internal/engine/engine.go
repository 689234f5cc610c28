// Package engine drives a completed Offer to settlement by stepping
// through the four ordered HTLC stages: BTC commitment, ETH commitment,
// ETH claim, and BTC claim. Each stage is idempotent against on-chain
// state, so re-invoking Execute on the same offer index is always safe.
package engine

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/0x330a-public/gauloi-go/internal/btcchain"
	"github.com/0x330a-public/gauloi-go/internal/btctx"
	"github.com/0x330a-public/gauloi-go/internal/ethchain"
	"github.com/0x330a-public/gauloi-go/internal/keyring"
	"github.com/0x330a-public/gauloi-go/internal/offer"
	"github.com/0x330a-public/gauloi-go/internal/store"
	"github.com/0x330a-public/gauloi-go/internal/swaperr"
	"github.com/0x330a-public/gauloi-go/pkg/logging"
)

// Stage names the four ordered steps Execute drives an offer through.
type Stage int

const (
	StageBTCCommit Stage = iota
	StageETHCommit
	StageETHClaim
	StageBTCClaim
)

func (s Stage) String() string {
	switch s {
	case StageBTCCommit:
		return "btc-commit"
	case StageETHCommit:
		return "eth-commit"
	case StageETHClaim:
		return "eth-claim"
	case StageBTCClaim:
		return "btc-claim"
	default:
		return "unknown-stage"
	}
}

const (
	defaultPollInterval = 10 * time.Second
	defaultMaxAttempts  = 10
)

// Config wires an Engine's collaborators. BTCChain and ETHClient are
// interfaces so tests can substitute fakes; Store and Keys are the
// concrete types the rest of the module already builds.
type Config struct {
	BTCChain  btcchain.Chain
	ETHClient ethCommitter
	Store     *store.Store
	Keys      *keyring.Keyring
	Params    *chaincfg.Params
	Logger    *logging.Logger

	// PollInterval and MaxAttempts override the spec's 10s/10-attempt
	// default, for tests that can't afford to wait 100 seconds.
	PollInterval time.Duration
	MaxAttempts  int
}

// ethCommitter is the subset of *ethchain.Client the engine needs,
// narrowed to an interface so unit tests can drive the ETH stages
// without a live node, the same way btcchain.Chain does for Bitcoin.
type ethCommitter interface {
	CommitETH(ctx context.Context, key *ecdsa.PrivateKey, seller common.Address, preimageHash [32]byte, timeout, amount *big.Int) (*types.Transaction, error)
	ClaimETH(ctx context.Context, key *ecdsa.PrivateKey, swapID *big.Int, preimage [32]byte) (*types.Transaction, error)
	OurSwapID(ctx context.Context, preimageHash [32]byte) (*big.Int, error)
	OurSwapByID(ctx context.Context, swapID *big.Int) (ethchain.Swap, error)
	OurSwap(ctx context.Context, preimageHash [32]byte) (ethchain.Swap, error)
}

// Engine drives one offer at a time through the four HTLC stages.
type Engine struct {
	btcChain  btcchain.Chain
	ethClient ethCommitter
	store     *store.Store
	keys      *keyring.Keyring
	params    *chaincfg.Params
	log       *logging.Logger

	pollInterval time.Duration
	maxAttempts  int
}

// New builds an Engine from cfg, applying the spec's default poll
// cadence when the caller leaves PollInterval/MaxAttempts unset.
func New(cfg Config) *Engine {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	return &Engine{
		btcChain:     cfg.BTCChain,
		ethClient:    cfg.ETHClient,
		store:        cfg.Store,
		keys:         cfg.Keys,
		params:       cfg.Params,
		log:          log,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
	}
}

// Execute drives the offer stored at offerIndex through all four stages
// in strict order, returning once the swap has settled from this
// party's point of view or a fatal error aborts it.
func (e *Engine) Execute(ctx context.Context, offerIndex int64) error {
	o, err := e.store.GetCompleteOffer(offerIndex)
	if err != nil {
		return fmt.Errorf("load offer %d: %w", offerIndex, err)
	}

	btcIdentity := e.keys.BTCPubkeyHash()
	ethIdentity, err := e.keys.ETHAddress()
	if err != nil {
		return fmt.Errorf("derive local eth identity: %w", err)
	}

	isSeller := o.IsSeller(btcIdentity) || o.IsSeller(ethIdentity)
	isBuyer := o.IsBuyer(btcIdentity) || o.IsBuyer(ethIdentity)
	if !isSeller && !isBuyer {
		return fmt.Errorf("offer %d: local identity matches neither buyer nor seller", offerIndex)
	}

	runLog := e.log.With("run_id", uuid.New().String())
	runLog.Info("executing swap", "offer_index", offerIndex, "is_seller", isSeller, "is_buyer", isBuyer)

	if err := e.runStage(ctx, StageBTCCommit, func(ctx context.Context) (bool, error) {
		return e.stageBTCCommit(ctx, o, isSeller)
	}); err != nil {
		return err
	}

	if err := e.runStage(ctx, StageETHCommit, func(ctx context.Context) (bool, error) {
		return e.stageETHCommit(ctx, o, isBuyer)
	}); err != nil {
		return err
	}

	if err := e.runStage(ctx, StageETHClaim, func(ctx context.Context) (bool, error) {
		return e.stageETHClaim(ctx, o, isSeller, offerIndex)
	}); err != nil {
		return err
	}

	if !isBuyer {
		runLog.Info("swap settled from seller's side", "offer_index", offerIndex)
		return nil
	}

	if err := e.runStage(ctx, StageBTCClaim, func(ctx context.Context) (bool, error) {
		return e.stageBTCClaim(ctx, o)
	}); err != nil {
		return err
	}

	runLog.Info("swap settled", "offer_index", offerIndex)
	return nil
}

// runStage polls fn until it reports the stage's on-chain effect has
// happened, a fatal error occurs, or the retry ceiling is exhausted.
// Network errors are logged and treated as transient: the attempt still
// counts against the ceiling, but runStage keeps polling rather than
// aborting immediately.
func (e *Engine) runStage(ctx context.Context, stage Stage, fn func(ctx context.Context) (bool, error)) error {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		proceed, err := fn(ctx)
		if err != nil {
			if isFatal(err) {
				return fmt.Errorf("stage %s: %w", stage, err)
			}
			e.log.Warn("stage attempt failed, will retry", "stage", stage.String(), "attempt", attempt, "error", err)
		} else if proceed {
			return nil
		}

		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.pollInterval):
		}
	}
	return fmt.Errorf("stage %s: %w", stage, swaperr.ErrChainBackoff)
}

func isFatal(err error) bool {
	return errors.Is(err, swaperr.ErrMismatchedCommitment) ||
		errors.Is(err, swaperr.ErrMissingPreimage) ||
		errors.Is(err, swaperr.ErrPreimageNotRevealed) ||
		errors.Is(err, swaperr.ErrInsufficientFunds) ||
		errors.Is(err, swaperr.ErrIndexOutOfRange)
}

// stageBTCCommit is the seller's obligation: fund the HTLC P2WSH output
// if it isn't already funded for the full sale amount.
func (e *Engine) stageBTCCommit(ctx context.Context, o offer.Offer, isSeller bool) (bool, error) {
	script, err := offer.ScriptForOffer(o)
	if err != nil {
		return false, fmt.Errorf("build htlc script: %w", err)
	}
	htlcAddr, err := offer.P2WSHAddress(script, e.params)
	if err != nil {
		return false, fmt.Errorf("derive htlc address: %w", err)
	}

	balance, err := e.btcChain.GetBalance(ctx, htlcAddr.EncodeAddress())
	if err != nil {
		return false, err
	}
	sold := o.Sold.Uint64()
	if balance >= sold {
		return true, nil
	}
	if !isSeller {
		return false, nil
	}

	remainder := sold - balance
	sellerAddr, err := p2wpkhAddress(e.keys.BTCPrivateKey().PubKey().SerializeCompressed(), e.params)
	if err != nil {
		return false, fmt.Errorf("derive seller address: %w", err)
	}

	utxos, _, err := e.btcChain.FindUnspentsForValue(ctx, sellerAddr.EncodeAddress(), remainder+btctx.DefaultMinerFee)
	if err != nil {
		return false, err
	}

	tx, err := btctx.BuildFundingTx(utxos, e.keys.BTCPrivateKey(), sellerAddr, script, remainder, e.params)
	if err != nil {
		return false, err
	}

	rawHex, err := serializeTx(tx)
	if err != nil {
		return false, err
	}
	txid, err := e.btcChain.SubmitTx(ctx, rawHex)
	if err != nil {
		return false, err
	}
	e.log.Info("broadcast htlc funding transaction", "txid", txid, "amount_sats", remainder, "htlc_address", htlcAddr.EncodeAddress())
	return true, nil
}

// stageETHCommit is the buyer's obligation: lock offer.bought wei
// against preimage_hash once the BTC side has been committed.
func (e *Engine) stageETHCommit(ctx context.Context, o offer.Offer, isBuyer bool) (bool, error) {
	swap, err := e.ethClient.OurSwap(ctx, [32]byte(o.PreimageHash))
	if err != nil {
		return false, err
	}
	bought := o.Bought.BigInt()
	if swap.Value != nil {
		if swap.Value.Cmp(bought) == 0 {
			return true, nil
		}
		return false, fmt.Errorf("%w: on-chain value %s, offer.bought %s", swaperr.ErrMismatchedCommitment, swap.Value, bought)
	}
	if !isBuyer {
		return false, nil
	}

	ethKey, err := e.ethSigningKey()
	if err != nil {
		return false, err
	}
	seller := common.Address(o.SellerEthAddress)
	timeout := big.NewInt(int64(o.LockupETH))

	tx, err := e.ethClient.CommitETH(ctx, ethKey, seller, [32]byte(o.PreimageHash), timeout, bought)
	if err != nil {
		return false, err
	}
	e.log.Info("broadcast eth commitment", "tx", tx.Hash().Hex(), "value_wei", bought)
	return true, nil
}

// stageETHClaim is the seller's obligation: reveal the preimage on-chain
// to collect the buyer's ETH commitment.
func (e *Engine) stageETHClaim(ctx context.Context, o offer.Offer, isSeller bool, offerIndex int64) (bool, error) {
	swapID, err := e.ethClient.OurSwapID(ctx, [32]byte(o.PreimageHash))
	if err != nil {
		return false, err
	}
	if swapID == nil {
		return false, nil
	}
	if o.SwapIDHex == "" {
		if err := e.store.UpdateSwapID(offerIndex, fmt.Sprintf("%#x", swapID)); err != nil {
			return false, err
		}
	}

	swap, err := e.ethClient.OurSwapByID(ctx, swapID)
	if err != nil {
		return false, err
	}
	if swap.IsClaimed() {
		return true, nil
	}
	if !isSeller {
		return false, nil
	}

	preimage, err := e.store.GetPreimage(o.RequestHash)
	if err != nil {
		return false, err
	}
	ethKey, err := e.ethSigningKey()
	if err != nil {
		return false, err
	}

	tx, err := e.ethClient.ClaimETH(ctx, ethKey, swapID, [32]byte(preimage))
	if err != nil {
		return false, err
	}
	e.log.Info("claimed eth swap, preimage now public", "tx", tx.Hash().Hex())
	return true, nil
}

// stageBTCClaim is the buyer's obligation: once the preimage is public,
// sweep every HTLC UTXO into a single claim transaction paying the
// buyer's own P2WPKH, so only one miner fee is ever deducted.
func (e *Engine) stageBTCClaim(ctx context.Context, o offer.Offer) (bool, error) {
	swap, err := e.ethClient.OurSwap(ctx, [32]byte(o.PreimageHash))
	if err != nil {
		return false, err
	}
	var zeroPreimage [32]byte
	if swap.Preimage == zeroPreimage {
		return false, swaperr.ErrPreimageNotRevealed
	}

	script, err := offer.ScriptForOffer(o)
	if err != nil {
		return false, fmt.Errorf("build htlc script: %w", err)
	}
	htlcAddr, err := offer.P2WSHAddress(script, e.params)
	if err != nil {
		return false, fmt.Errorf("derive htlc address: %w", err)
	}

	utxos, err := e.btcChain.GetUTXOs(ctx, htlcAddr.EncodeAddress())
	if err != nil {
		return false, err
	}
	if len(utxos) == 0 {
		return false, nil
	}

	buyerAddr, err := p2wpkhAddress(e.keys.BTCPrivateKey().PubKey().SerializeCompressed(), e.params)
	if err != nil {
		return false, fmt.Errorf("derive buyer address: %w", err)
	}

	preimage := offer.Preimage(swap.Preimage)
	tx, err := btctx.BuildClaimTx(utxos, script, preimage, e.keys.BTCPrivateKey(), buyerAddr)
	if err != nil {
		return false, err
	}
	rawHex, err := serializeTx(tx)
	if err != nil {
		return false, err
	}

	var totalValue uint64
	for _, u := range utxos {
		totalValue += u.Value
	}

	txid, err := e.btcChain.SubmitTx(ctx, rawHex)
	if err != nil {
		return false, err
	}
	e.log.Info("claimed btc htlc outputs", "txid", txid, "inputs", len(utxos), "amount_sats", totalValue)
	return true, nil
}

func (e *Engine) ethSigningKey() (*ecdsa.PrivateKey, error) {
	key, err := e.keys.ETHPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("derive eth signing key: %w", err)
	}
	return key, nil
}

func p2wpkhAddress(compressedPubKey []byte, params *chaincfg.Params) (*btcutil.AddressWitnessPubKeyHash, error) {
	return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(compressedPubKey), params)
}

func serializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("serialize transaction: %w", err)
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
