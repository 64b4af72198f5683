package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleRecord struct {
	Name  string
	Value uint64
}

func TestKVRoundtrip(t *testing.T) {
	kv := NewKV(NewMemDB())

	ok, err := kv.KVGet([]byte("missing"), &sampleRecord{})
	require.NoError(t, err)
	require.False(t, ok)

	record := sampleRecord{Name: "vault", Value: 42}
	require.NoError(t, kv.KVPut([]byte("record"), record))

	var loaded sampleRecord
	ok, err = kv.KVGet([]byte("record"), &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record, loaded)
}

func TestKVAppendBuildsList(t *testing.T) {
	kv := NewKV(NewMemDB())
	key := []byte("list")

	var list [][]byte
	require.NoError(t, kv.KVGetList(key, &list))
	require.Empty(t, list)

	require.NoError(t, kv.KVAppend(key, []byte("a")))
	require.NoError(t, kv.KVAppend(key, []byte("b")))
	require.NoError(t, kv.KVAppend(key, []byte("c")))

	require.NoError(t, kv.KVGetList(key, &list))
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, list)
}

func TestKVOverwrite(t *testing.T) {
	kv := NewKV(NewMemDB())
	key := []byte("record")

	require.NoError(t, kv.KVPut(key, sampleRecord{Name: "first", Value: 1}))
	require.NoError(t, kv.KVPut(key, sampleRecord{Name: "second", Value: 2}))

	var loaded sampleRecord
	ok, err := kv.KVGet(key, &loaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "second", loaded.Name)
}

func TestKVDelete(t *testing.T) {
	kv := NewKV(NewMemDB())
	key := []byte("record")

	require.NoError(t, kv.KVPut(key, sampleRecord{Name: "vault", Value: 1}))
	require.NoError(t, kv.KVDelete(key))

	ok, err := kv.KVGet(key, &sampleRecord{})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.KVDelete([]byte("missing")))
}

func TestMemDBIsolatesBuffers(t *testing.T) {
	db := NewMemDB()
	value := []byte("payload")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'X'

	got, ok, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("payload"), got)

	require.NoError(t, db.Delete([]byte("k")))
	_, ok, err = db.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, db.Len())
}
