package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// KV adapts a raw Database into the typed key-value surface the vault engine
// consumes. Records are RLP-encoded; list keys hold an RLP-encoded [][]byte
// that KVAppend extends in place.
type KV struct {
	db Database
}

// NewKV wraps the backend database.
func NewKV(db Database) *KV {
	return &KV{db: db}
}

// KVGet decodes the record stored under key into out. The boolean reports
// whether the key existed.
func (kv *KV) KVGet(key []byte, out interface{}) (bool, error) {
	raw, ok, err := kv.db.Get(key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut encodes value with RLP and stores it under key.
func (kv *KV) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return kv.db.Put(key, encoded)
}

// KVDelete removes the record stored under key. Deleting a missing key is a
// no-op.
func (kv *KV) KVDelete(key []byte) error {
	return kv.db.Delete(key)
}

// KVAppend appends an opaque entry to the list stored under key, creating the
// list on first use.
func (kv *KV) KVAppend(key []byte, value []byte) error {
	var list [][]byte
	if err := kv.KVGetList(key, &list); err != nil {
		return err
	}
	entry := make([]byte, len(value))
	copy(entry, value)
	list = append(list, entry)
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return fmt.Errorf("storage: encode list %q: %w", key, err)
	}
	return kv.db.Put(key, encoded)
}

// KVGetList decodes the list stored under key into out. A missing key yields
// an empty list.
func (kv *KV) KVGetList(key []byte, out *[][]byte) error {
	raw, ok, err := kv.db.Get(key)
	if err != nil {
		return err
	}
	if !ok || len(raw) == 0 {
		*out = nil
		return nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return fmt.Errorf("storage: decode list %q: %w", key, err)
	}
	return nil
}
