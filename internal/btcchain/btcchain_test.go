package btcchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetUTXOs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/address/bc1qtest/utxo" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"txid": "aa", "vout": 0, "value": 1000, "status": map[string]interface{}{"confirmed": true}},
			{"txid": "bb", "vout": 1, "value": 2000, "status": map[string]interface{}{"confirmed": false}},
		})
	}))
	defer srv.Close()

	chain := NewEsploraChain(srv.URL)
	utxos, err := chain.GetUTXOs(context.Background(), "bc1qtest")
	if err != nil {
		t.Fatalf("GetUTXOs() error = %v", err)
	}
	if len(utxos) != 2 {
		t.Fatalf("expected 2 utxos, got %d", len(utxos))
	}
	if utxos[0].Value != 1000 || utxos[0].Confirmations != 1 {
		t.Fatalf("unexpected first utxo: %+v", utxos[0])
	}
	if utxos[1].Confirmations != 0 {
		t.Fatalf("unexpected second utxo confirmations: %+v", utxos[1])
	}
}

func TestFindUnspentsForValueNaturalOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"txid": "big", "vout": 0, "value": 50, "status": map[string]interface{}{"confirmed": true}},
			{"txid": "small1", "vout": 0, "value": 10, "status": map[string]interface{}{"confirmed": true}},
			{"txid": "small2", "vout": 0, "value": 10, "status": map[string]interface{}{"confirmed": true}},
		})
	}))
	defer srv.Close()

	chain := NewEsploraChain(srv.URL)

	// A value satisfiable by the first UTXO alone must not reach past it,
	// even though later entries would also work — no sorting by size.
	selected, total, err := chain.FindUnspentsForValue(context.Background(), "addr", 30)
	if err != nil {
		t.Fatalf("FindUnspentsForValue() error = %v", err)
	}
	if len(selected) != 1 || selected[0].TxID != "big" {
		t.Fatalf("expected single 'big' utxo selected first, got %+v", selected)
	}
	if total != 50 {
		t.Fatalf("total = %d, want 50", total)
	}

	_, _, err = chain.FindUnspentsForValue(context.Background(), "addr", 1000)
	if err != ErrInsufficientUTXOs {
		t.Fatalf("expected ErrInsufficientUTXOs, got %v", err)
	}
}

func TestSubmitTx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		w.Write([]byte("deadbeef\n"))
	}))
	defer srv.Close()

	chain := NewEsploraChain(srv.URL)
	txid, err := chain.SubmitTx(context.Background(), "0102")
	if err != nil {
		t.Fatalf("SubmitTx() error = %v", err)
	}
	if txid != "deadbeef" {
		t.Fatalf("txid = %q, want deadbeef", txid)
	}
}

func TestGetBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"txid": "a", "vout": 0, "value": 100, "status": map[string]interface{}{"confirmed": true}},
			{"txid": "b", "vout": 0, "value": 250, "status": map[string]interface{}{"confirmed": true}},
		})
	}))
	defer srv.Close()

	chain := NewEsploraChain(srv.URL)
	balance, err := chain.GetBalance(context.Background(), "addr")
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	if balance != 350 {
		t.Fatalf("balance = %d, want 350", balance)
	}
}
