package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"powerperp/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

// Manager serialises every read-modify-write cycle against the backing
// database. Writes made inside Update are buffered on a Tx and committed as a
// single storage batch once the callback returns nil.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Update runs fn inside the manager's critical section. All writes performed
// through the Tx become visible atomically if and only if fn returns nil.
func (m *Manager) Update(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newTx(m.db)
	defer tx.close()
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	if err := m.db.Commit(tx.ops()); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// View runs fn under the same lock as Update but discards any writes.
func (m *Manager) View(fn func(tx *Tx) error) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := newTx(m.db)
	defer tx.close()
	return fn(tx)
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx is a buffered view over the database. It is only valid for the duration
// of the Update or View callback that received it.
type Tx struct {
	db     storage.Database
	writes map[string]pendingWrite
	order  []string
	closed bool
}

func newTx(db storage.Database) *Tx {
	return &Tx{db: db, writes: make(map[string]pendingWrite)}
}

func (tx *Tx) close() { tx.closed = true }

func (tx *Tx) ops() []storage.Op {
	ops := make([]storage.Op, 0, len(tx.order))
	for _, key := range tx.order {
		w := tx.writes[key]
		ops = append(ops, storage.Op{Key: []byte(key), Value: w.value, Delete: w.deleted})
	}
	return ops
}

func (tx *Tx) get(key []byte) ([]byte, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	if w, ok := tx.writes[string(key)]; ok {
		if w.deleted {
			return nil, nil
		}
		return w.value, nil
	}
	data, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (tx *Tx) put(key []byte, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = pendingWrite{value: append([]byte(nil), value...)}
	return nil
}

func (tx *Tx) del(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	k := string(key)
	if _, ok := tx.writes[k]; !ok {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = pendingWrite{deleted: true}
	return nil
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the RLP encoding of value under the hashed key.
func (tx *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return tx.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (tx *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := tx.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (tx *Tx) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return tx.del(kvKey(key))
}
