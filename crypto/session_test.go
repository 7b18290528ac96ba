package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"nhbchain/core/protocol"
)

func TestSessionSignerSignAndVerifyRoundTrip(t *testing.T) {
	root, err := GeneratePrivateKey()
	require.NoError(t, err)
	signer := NewSessionSigner(root)
	ctx := context.Background()

	key, err := signer.GetOurKey(ctx, "session-a")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	digest, err := protocol.PromiseDigest(protocol.TrxRecord{TransactionCode: "tx", SessionCode: "session-a"})
	require.NoError(t, err)

	sig, err := signer.Sign(ctx, "session-a", digest)
	require.NoError(t, err)

	ok, err := signer.Verify(ctx, key, digest, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSessionSignerDerivesDistinctKeysPerSession(t *testing.T) {
	root, err := GeneratePrivateKey()
	require.NoError(t, err)
	signer := NewSessionSigner(root)
	ctx := context.Background()

	keyA, err := signer.GetOurKey(ctx, "session-a")
	require.NoError(t, err)
	keyB, err := signer.GetOurKey(ctx, "session-b")
	require.NoError(t, err)

	require.NotEqual(t, keyA, keyB)
}

func TestSessionSignerIsDeterministicForSameSession(t *testing.T) {
	root, err := GeneratePrivateKey()
	require.NoError(t, err)
	signer := NewSessionSigner(root)
	ctx := context.Background()

	key1, err := signer.GetOurKey(ctx, "session-a")
	require.NoError(t, err)
	key2, err := signer.GetOurKey(ctx, "session-a")
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}

func TestSessionSignerVerifyRejectsWrongKey(t *testing.T) {
	root, err := GeneratePrivateKey()
	require.NoError(t, err)
	signer := NewSessionSigner(root)
	ctx := context.Background()

	otherRoot, err := GeneratePrivateKey()
	require.NoError(t, err)
	otherSigner := NewSessionSigner(otherRoot)

	digest, err := protocol.PromiseDigest(protocol.TrxRecord{TransactionCode: "tx", SessionCode: "session-a"})
	require.NoError(t, err)

	sig, err := signer.Sign(ctx, "session-a", digest)
	require.NoError(t, err)

	claimedKey, err := otherSigner.GetOurKey(ctx, "session-a")
	require.NoError(t, err)

	ok, err := signer.Verify(ctx, claimedKey, digest, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionSignerVerifyRejectsMalformedSignature(t *testing.T) {
	root, err := GeneratePrivateKey()
	require.NoError(t, err)
	signer := NewSessionSigner(root)
	ctx := context.Background()

	key, err := signer.GetOurKey(ctx, "session-a")
	require.NoError(t, err)
	digest, err := protocol.PromiseDigest(protocol.TrxRecord{TransactionCode: "tx", SessionCode: "session-a"})
	require.NoError(t, err)

	ok, err := signer.Verify(ctx, key, digest, []byte("too-short"))
	require.NoError(t, err)
	require.False(t, ok)
}
