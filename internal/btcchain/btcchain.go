// Package btcchain provides the read-only Bitcoin chain view and
// broadcast path the swap engine needs: UTXO lookup, unspent selection,
// balance, and transaction submission. No private keys are handled here.
package btcchain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// UTXO is an unspent output at a watched address.
type UTXO struct {
	TxID          string
	Vout          uint32
	Value         uint64 // satoshis
	Confirmations int64
	ScriptPubKey  string // hex
}

// Chain is the interface the swap engine and transaction builder use to
// observe and interact with the Bitcoin network. Exactly the four
// operations the protocol needs — no fee estimation, no block headers,
// no address-transaction history.
type Chain interface {
	// GetUTXOs returns every unspent output currently sitting at address.
	GetUTXOs(ctx context.Context, address string) ([]UTXO, error)

	// FindUnspentsForValue selects UTXOs from GetUTXOs(address) in the
	// order returned, accumulating until the running total is >= value.
	// No sorting: the first UTXOs the backend reports that cover the
	// requested amount are used, matching the reference client's
	// unoptimized natural-order coin selection.
	FindUnspentsForValue(ctx context.Context, address string, value uint64) ([]UTXO, uint64, error)

	// SubmitTx broadcasts a raw signed transaction (hex-encoded) and
	// returns its txid.
	SubmitTx(ctx context.Context, rawTxHex string) (string, error)

	// GetBalance sums the value of every unspent output at address.
	GetBalance(ctx context.Context, address string) (uint64, error)
}

var (
	// ErrAddressNotFound is returned when the backend has no record of
	// the requested address.
	ErrAddressNotFound = fmt.Errorf("address not found")
	// ErrBroadcastFailed is returned when the backend rejects a
	// transaction.
	ErrBroadcastFailed = fmt.Errorf("broadcast failed")
	// ErrInsufficientUTXOs is returned by FindUnspentsForValue when no
	// prefix of the address's UTXOs reaches the requested value.
	ErrInsufficientUTXOs = fmt.Errorf("insufficient unspent outputs for requested value")
)

// EsploraChain implements Chain against an Esplora-compatible REST API
// (blockstream.info, mempool.space, and self-hosted instances all share
// this shape).
type EsploraChain struct {
	baseURL    string
	httpClient *http.Client
	mu         sync.Mutex
}

// NewEsploraChain builds a Chain pointed at baseURL (e.g.
// "https://blockstream.info/testnet/api").
func NewEsploraChain(baseURL string) *EsploraChain {
	return &EsploraChain{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *EsploraChain) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAddressNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// GetUTXOs fetches the unspent outputs sitting at address.
func (c *EsploraChain) GetUTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var result []struct {
		TxID   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
		Value uint64 `json:"value"`
	}

	c.mu.Lock()
	err := c.get(ctx, "/address/"+address+"/utxo", &result)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	utxos := make([]UTXO, 0, len(result))
	for _, u := range result {
		confs := int64(0)
		if u.Status.Confirmed {
			confs = 1
		}
		utxos = append(utxos, UTXO{
			TxID:          u.TxID,
			Vout:          u.Vout,
			Value:         u.Value,
			Confirmations: confs,
		})
	}
	return utxos, nil
}

// FindUnspentsForValue walks GetUTXOs(address) in the order the backend
// returns them and accumulates until the running sum covers value.
func (c *EsploraChain) FindUnspentsForValue(ctx context.Context, address string, value uint64) ([]UTXO, uint64, error) {
	utxos, err := c.GetUTXOs(ctx, address)
	if err != nil {
		return nil, 0, err
	}

	var selected []UTXO
	var total uint64
	for _, u := range utxos {
		selected = append(selected, u)
		total += u.Value
		if total >= value {
			return selected, total, nil
		}
	}
	return nil, 0, ErrInsufficientUTXOs
}

// SubmitTx broadcasts rawTxHex and returns the resulting txid.
func (c *EsploraChain) SubmitTx(ctx context.Context, rawTxHex string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/tx", strings.NewReader(rawTxHex))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	c.mu.Lock()
	resp, err := c.httpClient.Do(req)
	c.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBroadcastFailed, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s", ErrBroadcastFailed, string(body))
	}
	return strings.TrimSpace(string(body)), nil
}

// GetBalance sums the value of every unspent output at address.
func (c *EsploraChain) GetBalance(ctx context.Context, address string) (uint64, error) {
	utxos, err := c.GetUTXOs(ctx, address)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, u := range utxos {
		total += u.Value
	}
	return total, nil
}

var _ Chain = (*EsploraChain)(nil)
