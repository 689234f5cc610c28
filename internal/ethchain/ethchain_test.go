// Integration tests require a local Anvil node running with the swap
// factory contract deployed:
//
//	anvil &
//	forge create SwapFactory --private-key <key> --broadcast
//
// Then run with TEST_RPC_URL and TEST_CONTRACT_ADDRESS set.
package ethchain

import (
	"context"
	"crypto/sha256"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// =============================================================================
// Unit tests (no network required)
// =============================================================================

func TestSwapIsClaimed(t *testing.T) {
	s := Swap{}
	if s.IsClaimed() {
		t.Error("zero-value swap should not be claimed")
	}

	s.Preimage[0] = 0xff
	if !s.IsClaimed() {
		t.Error("non-zero preimage should mark swap claimed")
	}
}

func TestFactoryABIPackCreateSwap(t *testing.T) {
	seller := common.HexToAddress("0x1234567890123456789012345678901234567890")
	var preimageHash [32]byte
	copy(preimageHash[:], []byte("deadbeefdeadbeefdeadbeefdeadbeef"))
	timeout := big.NewInt(time.Now().Add(time.Hour).Unix())

	data, err := factoryABI.Pack("create_swap", seller, preimageHash, timeout)
	if err != nil {
		t.Fatalf("Pack(create_swap) failed: %v", err)
	}
	if len(data) != 4+32*3 {
		t.Fatalf("unexpected calldata length %d", len(data))
	}

	method, err := factoryABI.MethodById(data[:4])
	if err != nil {
		t.Fatalf("MethodById failed: %v", err)
	}
	if method.Name != "create_swap" {
		t.Errorf("method name = %s, want create_swap", method.Name)
	}
}

func TestFactoryABIPackClaimSwap(t *testing.T) {
	swapID := big.NewInt(42)
	var preimage [32]byte
	copy(preimage[:], []byte("shared-secret-shared-secret-pad"))

	data, err := factoryABI.Pack("claim_swap", swapID, preimage)
	if err != nil {
		t.Fatalf("Pack(claim_swap) failed: %v", err)
	}
	if len(data) != 4+32*2 {
		t.Fatalf("unexpected calldata length %d", len(data))
	}
}

func TestFactoryABIUnpackHashToSwapMap(t *testing.T) {
	encoded, err := factoryABI.Methods["hash_to_swap_map"].Outputs.Pack(big.NewInt(7))
	if err != nil {
		t.Fatalf("Outputs.Pack failed: %v", err)
	}

	var out *big.Int
	if err := factoryABI.UnpackIntoInterface(&out, "hash_to_swap_map", encoded); err != nil {
		t.Fatalf("UnpackIntoInterface failed: %v", err)
	}
	if out.Cmp(big.NewInt(7)) != 0 {
		t.Errorf("swap id = %s, want 7", out.String())
	}
}

func TestFactoryABIUnpackSwaps(t *testing.T) {
	var preimageHash, preimage [32]byte
	copy(preimageHash[:], []byte("preimage-hash-preimage-hash-pad"))

	encoded, err := factoryABI.Methods["swaps"].Outputs.Pack(big.NewInt(1000), preimageHash, preimage)
	if err != nil {
		t.Fatalf("Outputs.Pack failed: %v", err)
	}

	var out Swap
	if err := factoryABI.UnpackIntoInterface(&out, "swaps", encoded); err != nil {
		t.Fatalf("UnpackIntoInterface failed: %v", err)
	}
	if out.Value.Cmp(big.NewInt(1000)) != 0 {
		t.Errorf("value = %s, want 1000", out.Value.String())
	}
	if out.PreimageHash != preimageHash {
		t.Error("preimage hash mismatch")
	}
	if out.IsClaimed() {
		t.Error("unclaimed swap should report IsClaimed() == false")
	}
}

// =============================================================================
// Integration tests (require Anvil node)
// =============================================================================

func getIntegrationConfig(t *testing.T) (rpcURL string, contract common.Address) {
	t.Helper()

	rpcURL = os.Getenv("TEST_RPC_URL")
	if rpcURL == "" {
		rpcURL = "http://localhost:8545"
	}
	addr := os.Getenv("TEST_CONTRACT_ADDRESS")
	if addr == "" {
		t.Skip("TEST_CONTRACT_ADDRESS not set, skipping integration test")
	}
	return rpcURL, common.HexToAddress(addr)
}

func TestIntegrationCommitAndClaimETH(t *testing.T) {
	rpcURL, contract := getIntegrationConfig(t)

	sellerKeyHex := os.Getenv("TEST_SELLER_KEY")
	if sellerKeyHex == "" {
		sellerKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	}
	sellerKey, err := crypto.HexToECDSA(sellerKeyHex)
	if err != nil {
		t.Fatalf("invalid seller key: %v", err)
	}
	buyerAddr := crypto.PubkeyToAddress(sellerKey.PublicKey)

	ctx := context.Background()
	client, err := NewClient(ctx, rpcURL, contract)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	defer client.Close()

	var preimage [32]byte
	copy(preimage[:], []byte("integration-test-preimage-value"))
	preimageHash := sha256.Sum256(preimage[:])

	timeout := big.NewInt(time.Now().Add(time.Hour).Unix())
	amount := big.NewInt(1e16)

	tx, err := client.CommitETH(ctx, sellerKey, buyerAddr, preimageHash, timeout, amount)
	if err != nil {
		t.Fatalf("CommitETH failed: %v", err)
	}
	t.Logf("committed eth in tx %s", tx.Hash().Hex())

	swap, err := client.OurSwap(ctx, preimageHash)
	if err != nil {
		t.Fatalf("OurSwap failed: %v", err)
	}
	if swap.IsClaimed() {
		t.Error("freshly committed swap should not be claimed")
	}

	swapID, err := client.OurSwapID(ctx, preimageHash)
	if err != nil {
		t.Fatalf("OurSwapID failed: %v", err)
	}
	if swapID == nil {
		t.Fatal("expected non-nil swap id after commit")
	}

	claimTx, err := client.ClaimETH(ctx, sellerKey, swapID, preimage)
	if err != nil {
		t.Fatalf("ClaimETH failed: %v", err)
	}
	t.Logf("claimed eth in tx %s", claimTx.Hash().Hex())
}
