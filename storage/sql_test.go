package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nhbchain/core/protocol"
)

func openTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "txnode.db")
	store, err := OpenSQLiteStore(path, nil)
	require.NoError(t, err)
	return store
}

func TestSQLStorePutAndGetTransaction(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	rec := testRecord("tx-1")

	require.NoError(t, store.PutTransaction(ctx, rec))

	got, ok, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.TransactionCode, got.TransactionCode)
}

func TestSQLStoreGetTransactionMissingIsNotAnError(t *testing.T) {
	store := openTestSQLStore(t)
	_, ok, err := store.GetTransaction(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLStorePutTransactionUpsertsOnReplay(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	rec := testRecord("tx-1")

	require.NoError(t, store.PutTransaction(ctx, rec))
	rec.Promises = protocol.NewSignatureSet([]protocol.Signature{{Type: protocol.SigPromise, Key: "alice", Value: []byte("a")}})
	require.NoError(t, store.PutTransaction(ctx, rec))

	got, ok, err := store.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.TransactionCode, got.TransactionCode)
}

func TestSQLStorePeerRecordRoundTrip(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	rec := testRecord("tx-1")

	require.NoError(t, store.SetPeerRecord(ctx, "bob", rec))

	got, ok, err := store.GetPeerRecord(ctx, "bob", "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.TransactionCode, got.TransactionCode)

	_, ok, err = store.GetPeerRecord(ctx, "carol", "tx-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLStoreLogInvalidAppendsRows(t *testing.T) {
	store := openTestSQLStore(t)
	ctx := context.Background()
	rec := testRecord("tx-1")

	require.NoError(t, store.LogInvalid(ctx, rec, errors.New("bad signature")))
	require.NoError(t, store.LogInvalid(ctx, rec, errors.New("bad signature")))

	var count int64
	require.NoError(t, store.db.Model(&invalidLogRow{}).Where("transaction_code = ?", "tx-1").Count(&count).Error)
	require.Equal(t, int64(2), count)
}
