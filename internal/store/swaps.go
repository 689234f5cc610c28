package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/0x330a-public/gauloi-go/internal/offer"
	"github.com/0x330a-public/gauloi-go/internal/swaperr"
)

// AddPendingOffer stores an OfferRequest this node created (or received
// and intends to answer), keyed by its own content hash.
func (s *Store) AddPendingOffer(req offer.OfferRequest) (offer.Hash32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, err := req.Hash()
	if err != nil {
		return offer.Hash32{}, fmt.Errorf("hash request: %w", err)
	}
	bytes, err := offer.MarshalCanonical(req)
	if err != nil {
		return offer.Hash32{}, fmt.Errorf("marshal request: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO requests (request_hash, cbor_bytes, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(request_hash) DO NOTHING`,
		hash.String(), bytes, time.Now().Unix(),
	)
	if err != nil {
		return offer.Hash32{}, fmt.Errorf("insert request: %w", err)
	}
	return hash, nil
}

// AddPreimage stores the secret behind a pending request's preimage hash.
func (s *Store) AddPreimage(requestHash offer.Hash32, preimage offer.Preimage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO preimages (request_hash, preimage, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(request_hash) DO UPDATE SET preimage = excluded.preimage`,
		requestHash.String(), preimage[:], time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert preimage: %w", err)
	}
	return nil
}

// GetPendingOffer looks up a stored OfferRequest by its content hash.
func (s *Store) GetPendingOffer(requestHash offer.Hash32) (offer.OfferRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	row := s.db.QueryRow(`SELECT cbor_bytes FROM requests WHERE request_hash = ?`, requestHash.String())
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return offer.OfferRequest{}, swaperr.ErrMissingRequest
		}
		return offer.OfferRequest{}, fmt.Errorf("query request: %w", err)
	}

	var req offer.OfferRequest
	if err := offer.UnmarshalCanonical(raw, &req); err != nil {
		return offer.OfferRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

// GetPreimage looks up the secret stored for a request hash.
func (s *Store) GetPreimage(requestHash offer.Hash32) (offer.Preimage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw []byte
	row := s.db.QueryRow(`SELECT preimage FROM preimages WHERE request_hash = ?`, requestHash.String())
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return offer.Preimage{}, swaperr.ErrMissingPreimage
		}
		return offer.Preimage{}, fmt.Errorf("query preimage: %w", err)
	}
	if len(raw) != 32 {
		return offer.Preimage{}, fmt.Errorf("stored preimage has unexpected length %d", len(raw))
	}
	var p offer.Preimage
	copy(p[:], raw)
	return p, nil
}

// AddOfferResponse joins an incoming OfferResponse against the pending
// request it targets, verifying the response's carried request_hash
// against the locally-recomputed hash of the stored request bytes (the
// request_hash is never trusted directly off the wire), and persists the
// resulting completed Offer under a fresh sequential index.
func (s *Store) AddOfferResponse(resp offer.OfferResponse) (offer.Offer, int64, error) {
	req, err := s.GetPendingOffer(resp.RequestHash)
	if err != nil {
		return offer.Offer{}, 0, err
	}

	localHash, err := req.Hash()
	if err != nil {
		return offer.Offer{}, 0, fmt.Errorf("rehash stored request: %w", err)
	}
	if localHash != resp.RequestHash {
		return offer.Offer{}, 0, swaperr.ErrMissingRequest
	}
	if resp.Version != offer.Version {
		return offer.Offer{}, 0, fmt.Errorf("%w: response version %d does not match protocol version %d", swaperr.ErrMismatchedCommitment, resp.Version, offer.Version)
	}
	if resp.Sold != req.Sold || resp.Bought != req.Bought {
		return offer.Offer{}, 0, fmt.Errorf("%w: response amounts do not match request", swaperr.ErrMismatchedCommitment)
	}

	completed, err := offer.NewOffer(req, resp)
	if err != nil {
		return offer.Offer{}, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bytes, err := offer.MarshalCanonical(completed)
	if err != nil {
		return offer.Offer{}, 0, fmt.Errorf("marshal offer: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(
		`INSERT INTO offers (request_hash, cbor_bytes, swap_id_hex, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?)
		 ON CONFLICT(request_hash) DO UPDATE SET cbor_bytes = excluded.cbor_bytes, updated_at = excluded.updated_at`,
		localHash.String(), bytes, now, now,
	)
	if err != nil {
		return offer.Offer{}, 0, fmt.Errorf("insert offer: %w", err)
	}

	var index int64
	row := s.db.QueryRow(`SELECT offer_index FROM offers WHERE request_hash = ?`, localHash.String())
	if err := row.Scan(&index); err != nil {
		return offer.Offer{}, 0, fmt.Errorf("read offer index: %w", err)
	}
	return completed, index, nil
}

// UpdateSwapID records the ETH HTLC contract's swap id once the engine
// has created it on-chain.
func (s *Store) UpdateSwapID(index int64, swapIDHex string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	offer, err := s.getOfferByIndexLocked(index)
	if err != nil {
		return err
	}
	offer.SwapIDHex = swapIDHex

	bytes, err := marshalOffer(offer)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`UPDATE offers SET cbor_bytes = ?, swap_id_hex = ?, updated_at = ? WHERE offer_index = ?`,
		bytes, swapIDHex, time.Now().Unix(), index,
	)
	if err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	return nil
}

// GetCompleteOffer returns the completed Offer stored at the given index.
func (s *Store) GetCompleteOffer(index int64) (offer.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOfferByIndexLocked(index)
}

func (s *Store) getOfferByIndexLocked(index int64) (offer.Offer, error) {
	var raw []byte
	row := s.db.QueryRow(`SELECT cbor_bytes FROM offers WHERE offer_index = ?`, index)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return offer.Offer{}, swaperr.ErrIndexOutOfRange
		}
		return offer.Offer{}, fmt.Errorf("query offer: %w", err)
	}
	var o offer.Offer
	if err := offer.UnmarshalCanonical(raw, &o); err != nil {
		return offer.Offer{}, fmt.Errorf("decode offer: %w", err)
	}
	return o, nil
}

// GetSwapIndex returns the sequential index a completed Offer was stored
// under, by looking it up via its request hash.
func (s *Store) GetSwapIndex(requestHash offer.Hash32) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var index int64
	row := s.db.QueryRow(`SELECT offer_index FROM offers WHERE request_hash = ?`, requestHash.String())
	if err := row.Scan(&index); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, swaperr.ErrIndexOutOfRange
		}
		return 0, fmt.Errorf("query offer index: %w", err)
	}
	return index, nil
}

// GetAllOffers returns every completed offer, ordered by index.
func (s *Store) GetAllOffers() ([]offer.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT cbor_bytes FROM offers ORDER BY offer_index ASC`)
	if err != nil {
		return nil, fmt.Errorf("query offers: %w", err)
	}
	defer rows.Close()

	var out []offer.Offer
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		var o offer.Offer
		if err := offer.UnmarshalCanonical(raw, &o); err != nil {
			return nil, fmt.Errorf("decode offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func marshalOffer(o offer.Offer) ([]byte, error) {
	bytes, err := offer.MarshalCanonical(o)
	if err != nil {
		return nil, fmt.Errorf("marshal offer: %w", err)
	}
	return bytes, nil
}
