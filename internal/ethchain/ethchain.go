// Package ethchain wraps the deployed Gauloi swap factory contract: a
// hand-built ABI encoder/decoder over ethclient.Client rather than
// abigen-generated bindings, since no Solidity source ships with this
// module.
package ethchain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// factoryABIJSON describes exactly the four externally observable
// methods the swap factory contract exposes.
const factoryABIJSON = `[
	{
		"type": "function",
		"name": "create_swap",
		"stateMutability": "payable",
		"inputs": [
			{"name": "seller", "type": "address"},
			{"name": "preimage_hash", "type": "bytes32"},
			{"name": "timeout", "type": "uint256"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "claim_swap",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "swap_id", "type": "uint256"},
			{"name": "preimage", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "hash_to_swap_map",
		"stateMutability": "view",
		"inputs": [{"name": "preimage_hash", "type": "bytes32"}],
		"outputs": [{"name": "swap_id", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "swaps",
		"stateMutability": "view",
		"inputs": [{"name": "swap_id", "type": "uint256"}],
		"outputs": [
			{"name": "value", "type": "uint256"},
			{"name": "preimage_hash", "type": "bytes32"},
			{"name": "preimage", "type": "bytes32"}
		]
	}
]`

var factoryABI abi.ABI

func init() {
	var err error
	factoryABI, err = abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		panic(fmt.Sprintf("ethchain: invalid factory ABI: %v", err))
	}
}

// Swap mirrors the factory contract's `swaps(swap_id)` return value.
type Swap struct {
	Value        *big.Int
	PreimageHash [32]byte
	Preimage     [32]byte
}

// IsClaimed reports whether the preimage has been revealed on-chain.
func (s Swap) IsClaimed() bool {
	var zero [32]byte
	return s.Preimage != zero
}

// Client wraps an ethclient.Client bound to one deployed factory
// contract address.
type Client struct {
	rpc             *ethclient.Client
	contractAddress common.Address
	chainID         *big.Int
}

// NewClient dials rpcURL and binds to the factory deployed at
// contractAddress.
func NewClient(ctx context.Context, rpcURL string, contractAddress common.Address) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial eth rpc: %w", err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return &Client{rpc: rpc, contractAddress: contractAddress, chainID: chainID}, nil
}

// Close closes the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }

// ChainID returns the chain id the client dialed into, as reported by the
// node at connection time.
func (c *Client) ChainID() *big.Int { return c.chainID }

func (c *Client) transactor(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	data, err := factoryABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.rpc.CallContract(ctx, ethereumCallMsg(c.contractAddress, data), nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if result == nil {
		return nil
	}
	if err := factoryABI.UnpackIntoInterface(result, method, out); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, key *ecdsa.PrivateKey, value *big.Int, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := factoryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	auth, err := c.transactor(ctx, key)
	if err != nil {
		return nil, err
	}

	fromAddr := auth.From
	nonce, err := c.rpc.PendingNonceAt(ctx, fromAddr)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	msg := ethereumCallMsg(c.contractAddress, data)
	msg.From = fromAddr
	msg.Value = value
	gasLimit, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contractAddress,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign %s tx: %w", method, err)
	}
	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("broadcast %s tx: %w", method, err)
	}
	return signedTx, nil
}

// CommitETH creates a swap locking amount (wei) for seller, addressable
// by preimageHash. timeout is passed to create_swap unchanged; the engine
// supplies the offer's lockup_eth, a relative Ethereum block count.
func (c *Client) CommitETH(ctx context.Context, key *ecdsa.PrivateKey, seller common.Address, preimageHash [32]byte, timeout *big.Int, amount *big.Int) (*types.Transaction, error) {
	return c.send(ctx, key, amount, "create_swap", seller, preimageHash, timeout)
}

// ClaimETH reveals preimage on-chain, paying out swapID to the seller
// address it was created for in CommitETH.
func (c *Client) ClaimETH(ctx context.Context, key *ecdsa.PrivateKey, swapID *big.Int, preimage [32]byte) (*types.Transaction, error) {
	return c.send(ctx, key, big.NewInt(0), "claim_swap", swapID, preimage)
}

// OurSwapID returns the swap id assigned to preimageHash, or nil if
// none exists (id == 0).
func (c *Client) OurSwapID(ctx context.Context, preimageHash [32]byte) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, &out, "hash_to_swap_map", preimageHash); err != nil {
		return nil, err
	}
	if out.Sign() == 0 {
		return nil, nil
	}
	return out, nil
}

// OurSwapByID fetches the on-chain swap record by its id.
func (c *Client) OurSwapByID(ctx context.Context, swapID *big.Int) (Swap, error) {
	var out Swap
	if err := c.call(ctx, &out, "swaps", swapID); err != nil {
		return Swap{}, err
	}
	return out, nil
}

// OurSwap looks up the swap id for preimageHash and, if one exists,
// fetches its record. Returns the zero Swap and no error if no swap
// has been created for this hash yet.
func (c *Client) OurSwap(ctx context.Context, preimageHash [32]byte) (Swap, error) {
	swapID, err := c.OurSwapID(ctx, preimageHash)
	if err != nil {
		return Swap{}, err
	}
	if swapID == nil {
		return Swap{}, nil
	}
	return c.OurSwapByID(ctx, swapID)
}

// GetBalance returns address's ETH balance in wei.
func (c *Client) GetBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, address, nil)
}

func ethereumCallMsg(to common.Address, data []byte) ethereum.CallMsg {
	return ethereum.CallMsg{To: &to, Data: data}
}
