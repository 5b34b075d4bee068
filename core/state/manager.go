package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"nftylend/crypto"
	"nftylend/storage"
)

// Key prefixes partition the KV store per record family. Numeric IDs are
// encoded big-endian so prefix iteration yields ascending order.
var (
	keyProtocolParams   = []byte("lending/params")
	prefixDesk          = []byte("lending/desk/")
	prefixLoan          = []byte("lending/loan/")
	prefixLoanConfig    = []byte("lending/config/")
	prefixFees          = []byte("lending/fees/")
	keyDeskSequence     = []byte("lending/seq/desk")
	keyLoanSequence     = []byte("lending/seq/loan")
	prefixBankBalance   = []byte("bank/balance/")
	prefixBankAllowance = []byte("bank/allowance/")
	prefixCustodyToken  = []byte("custody/token/")
	prefixCustodyOp     = []byte("custody/approval/")
)

// Manager serializes ledger records to the KV store with JSON codecs and
// allocates sequential desk and loan IDs. It backs the lending, bank and
// custody engines.
type Manager struct {
	db storage.Database
}

// NewManager wraps a database handle.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) ready() error {
	if m == nil || m.db == nil {
		return errors.New("state: database not configured")
	}
	return nil
}

func idKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}

func joinKey(prefix []byte, parts ...string) []byte {
	key := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			key = append(key, '/')
		}
		key = append(key, part...)
	}
	return key
}

func (m *Manager) getJSON(key []byte, out interface{}) (bool, error) {
	raw, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

func decodeJSON(raw []byte, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("state: decode record: %w", err)
	}
	return nil
}

func (m *Manager) putJSON(key []byte, in interface{}) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, raw)
}

// nextSequence increments and persists a counter, returning the new value.
// The first allocation returns 1.
func (m *Manager) nextSequence(key []byte) (uint64, error) {
	var current uint64
	raw, err := m.db.Get(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, err
	case len(raw) == 8:
		current = binary.BigEndian.Uint64(raw)
	default:
		return 0, fmt.Errorf("state: corrupt sequence %q", key)
	}
	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put(key, buf); err != nil {
		return 0, err
	}
	return next, nil
}

func encodeAddress(addr crypto.Address) string {
	return hex.EncodeToString(addr.Bytes())
}

func decodeAddress(raw string) (crypto.Address, error) {
	if raw == "" {
		return crypto.Address{}, nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("state: decode address: %w", err)
	}
	if len(b) != 20 {
		return crypto.Address{}, fmt.Errorf("state: address must be 20 bytes, got %d", len(b))
	}
	return crypto.NewAddress(crypto.Prefix, b), nil
}
