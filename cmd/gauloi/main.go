// Package main provides gauloi, a trust-minimized BTC<->ETH atomic swap
// daemon. It is a thin cmd/ entry point: offer negotiation transport and
// an interactive shell are out of scope (see spec), so commands here
// exchange offers as hex-encoded canonical CBOR blobs the caller pastes
// between peers over whatever channel they trust.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0x330a-public/gauloi-go/internal/btcchain"
	"github.com/0x330a-public/gauloi-go/internal/config"
	"github.com/0x330a-public/gauloi-go/internal/engine"
	"github.com/0x330a-public/gauloi-go/internal/ethchain"
	"github.com/0x330a-public/gauloi-go/internal/keyring"
	"github.com/0x330a-public/gauloi-go/internal/offer"
	"github.com/0x330a-public/gauloi-go/internal/store"
	"github.com/0x330a-public/gauloi-go/pkg/helpers"
	"github.com/0x330a-public/gauloi-go/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// Ethereum mainnet and Sepolia testnet chain ids, used only to look up a
// known HTLC factory deployment when the operator hasn't configured one.
const (
	mainnetChainID uint64 = 1
	sepoliaChainID uint64 = 11155111
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "version":
		fmt.Printf("gauloi %s (commit: %s)\n", version, commit)
	case "addresses":
		cmdAddresses(args)
	case "offer":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "usage: gauloi offer <create|respond|list>")
			os.Exit(1)
		}
		switch args[0] {
		case "create":
			cmdOfferCreate(args[1:])
		case "respond":
			cmdOfferRespond(args[1:])
		case "list":
			cmdOfferList(args[1:])
		default:
			fmt.Fprintf(os.Stderr, "unknown offer subcommand %q\n", args[0])
			os.Exit(1)
		}
	case "execute":
		cmdExecute(args)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `gauloi - BTC<->ETH atomic swap daemon

Usage:
  gauloi version
  gauloi addresses [-data-dir DIR]
  gauloi offer create -sold BTC -bought ETH -lockup-btc N [-data-dir DIR]
  gauloi offer respond -request HEX -lockup-eth N [-data-dir DIR]
  gauloi offer list [-data-dir DIR]
  gauloi execute -index N [-data-dir DIR] [-log-level LEVEL]`)
}

// loadKeyring opens (or creates) the hot wallet key material under dataDir.
func loadKeyring(dataDir string) (*keyring.Keyring, error) {
	return keyring.Load(expandPath(dataDir))
}

func openStore(dataDir string) (*store.Store, error) {
	return store.New(&store.Config{DataDir: expandPath(dataDir)})
}

func cmdAddresses(args []string) {
	fs := flag.NewFlagSet("addresses", flag.ExitOnError)
	dataDir := fs.String("data-dir", "~/.gauloi", "Data directory")
	fs.Parse(args)

	kr, err := loadKeyring(*dataDir)
	if err != nil {
		fatal("load keyring", err)
	}

	ethAddr, err := kr.ETHAddress()
	if err != nil {
		fatal("derive eth address", err)
	}

	fmt.Printf("BTC pubkey hash: %s\n", kr.BTCPubkeyHash())
	fmt.Printf("ETH address:     0x%s\n", ethAddr)
}

func cmdOfferCreate(args []string) {
	fs := flag.NewFlagSet("offer create", flag.ExitOnError)
	dataDir := fs.String("data-dir", "~/.gauloi", "Data directory")
	sold := fs.String("sold", "0", "BTC offered for sale, e.g. \"0.5\"")
	bought := fs.String("bought", "0", "ETH requested in return, e.g. \"1.2\"")
	lockupBTC := fs.Uint("lockup-btc", uint(defaultBTCTimeout().MakerBlocks), "BTC relative timelock (blocks, BIP-68)")
	fs.Parse(args)

	soldSats, err := helpers.BTCToSatoshis(*sold)
	if err != nil {
		fatal("parse sold amount", err)
	}
	boughtWei, err := helpers.ETHToWei(*bought)
	if err != nil {
		fatal("parse bought amount", err)
	}
	boughtU128, err := offer.U128FromBigInt(new(big.Int).SetUint64(boughtWei))
	if err != nil {
		fatal("bought amount", err)
	}

	kr, err := loadKeyring(*dataDir)
	if err != nil {
		fatal("load keyring", err)
	}
	st, err := openStore(*dataDir)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	ethAddr, err := kr.ETHAddress()
	if err != nil {
		fatal("derive eth address", err)
	}
	preimage, err := keyring.Preimage()
	if err != nil {
		fatal("generate preimage", err)
	}

	req := offer.OfferRequest{
		Version:          offer.Version,
		Sold:             offer.U128FromUint64(soldSats),
		Bought:           boughtU128,
		LockupBTC:        uint8(*lockupBTC),
		SellerPubkeyHash: kr.BTCPubkeyHash(),
		SellerEthAddress: ethAddr,
		PreimageHash:     offer.Hash32(sha256.Sum256(preimage[:])),
	}

	requestHash, err := st.AddPendingOffer(req)
	if err != nil {
		fatal("store pending offer", err)
	}
	if err := st.AddPreimage(requestHash, preimage); err != nil {
		fatal("store preimage", err)
	}

	encoded, err := offer.MarshalCanonical(req)
	if err != nil {
		fatal("encode offer request", err)
	}

	fmt.Printf("request hash: %s\n", requestHash)
	fmt.Printf("send this to your counterparty:\n%s\n", hex.EncodeToString(encoded))
}

func cmdOfferRespond(args []string) {
	fs := flag.NewFlagSet("offer respond", flag.ExitOnError)
	dataDir := fs.String("data-dir", "~/.gauloi", "Data directory")
	requestHex := fs.String("request", "", "Hex-encoded OfferRequest received from the counterparty")
	lockupETH := fs.Uint("lockup-eth", uint(defaultBTCTimeout().TakerBlocks), "ETH relative timelock (blocks); must be < lockup-btc")
	fs.Parse(args)

	if *requestHex == "" {
		fatal("parse flags", fmt.Errorf("-request is required"))
	}
	raw, err := hex.DecodeString(*requestHex)
	if err != nil {
		fatal("decode request", err)
	}
	var req offer.OfferRequest
	if err := offer.UnmarshalCanonical(raw, &req); err != nil {
		fatal("unmarshal request", err)
	}
	requestHash, err := req.Hash()
	if err != nil {
		fatal("hash request", err)
	}

	kr, err := loadKeyring(*dataDir)
	if err != nil {
		fatal("load keyring", err)
	}
	st, err := openStore(*dataDir)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	ethAddr, err := kr.ETHAddress()
	if err != nil {
		fatal("derive eth address", err)
	}

	resp := offer.OfferResponse{
		Version:         offer.Version,
		Sold:            req.Sold,
		Bought:          req.Bought,
		LockupETH:       uint8(*lockupETH),
		BuyerPubkeyHash: kr.BTCPubkeyHash(),
		BuyerEthAddress: ethAddr,
		RequestHash:     requestHash,
	}

	built, index, err := st.AddOfferResponse(resp)
	if err != nil {
		fatal("store offer response", err)
	}

	fmt.Printf("offer index: %d\n", index)
	fmt.Printf("swap id (pending): %s\n", built.SwapIDHex)
}

func cmdOfferList(args []string) {
	fs := flag.NewFlagSet("offer list", flag.ExitOnError)
	dataDir := fs.String("data-dir", "~/.gauloi", "Data directory")
	fs.Parse(args)

	st, err := openStore(*dataDir)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	offers, err := st.GetAllOffers()
	if err != nil {
		fatal("list offers", err)
	}
	for i, o := range offers {
		fmt.Printf("[%d] sold=%s BTC bought=%s ETH swap_id=%q preimage_hash=%s\n",
			i+1, helpers.FormatAmount(o.Sold.Uint64(), 8), helpers.FormatAmount(o.Bought.Uint64(), 18),
			o.SwapIDHex, o.PreimageHash)
	}
}

func cmdExecute(args []string) {
	fs := flag.NewFlagSet("execute", flag.ExitOnError)
	dataDir := fs.String("data-dir", "~/.gauloi", "Data directory")
	index := fs.Int64("index", -1, "Offer index to execute")
	logLevel := fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.Parse(args)

	if *index < 0 {
		fatal("parse flags", fmt.Errorf("-index is required"))
	}

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	cfg, err := config.LoadDaemonConfig(*dataDir)
	if err != nil {
		fatal("load config", err)
	}

	kr, err := loadKeyring(*dataDir)
	if err != nil {
		fatal("load keyring", err)
	}
	st, err := openStore(*dataDir)
	if err != nil {
		fatal("open store", err)
	}
	defer st.Close()

	btcChain := btcchain.NewEsploraChain(cfg.Bitcoin.EsploraURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	contractAddr := cfg.Ethereum.Address()
	if cfg.Ethereum.ContractAddress == "" {
		chainID := mainnetChainID
		if cfg.Network == config.NetworkTestnet {
			chainID = sepoliaChainID
		}
		if !config.IsHTLCDeployed(chainID) {
			fatal("resolve htlc contract", fmt.Errorf("no contract_address configured and none known for chain %d", chainID))
		}
		contractAddr = config.GetHTLCContract(chainID)
		log.Info("No contract_address configured, using known deployment", "chain_id", chainID, "address", contractAddr.Hex())
	}

	ethClient, err := ethchain.NewClient(ctx, cfg.Ethereum.RPCURL, contractAddr)
	if err != nil {
		fatal("connect to ethereum node", err)
	}
	var expectedChainID uint64 = mainnetChainID
	if cfg.Network == config.NetworkTestnet {
		expectedChainID = sepoliaChainID
	}
	if got := ethClient.ChainID().Uint64(); got != expectedChainID {
		log.Warn("Connected RPC chain id differs from the daemon's assumed chain id", "rpc_chain_id", got, "expected_chain_id", expectedChainID)
	}

	eng := engine.New(engine.Config{
		BTCChain:     btcChain,
		ETHClient:    ethClient,
		Store:        st,
		Keys:         kr,
		Params:       cfg.ChainParams(),
		Logger:       log.Component("engine"),
		PollInterval: cfg.Engine.PollInterval,
		MaxAttempts:  cfg.Engine.MaxAttempts,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Interrupted, cancelling swap execution")
		cancel()
	}()

	log.Info("Executing swap", "index", *index)
	if err := eng.Execute(ctx, *index); err != nil {
		fatal("execute swap", err)
	}
	log.Info("Swap settled", "index", *index)
}

// defaultBTCTimeout supplies the default BTC/ETH relative timelocks for
// `offer create`/`offer respond`, reusing the exchange-wide BTC maker/taker
// timeout figures rather than inventing new ones.
func defaultBTCTimeout() config.ChainTimeoutConfig {
	cfg, _ := config.GetChainTimeout("BTC", false)
	return cfg
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "gauloi: %s: %v\n", action, err)
	os.Exit(1)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return home + path[1:]
		}
	}
	return path
}
