package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSigner is a deterministic stand-in for a real Signer: a signature
// value is just "sig:<key>:<digest>", and Verify checks the same shape, so
// tests can construct valid/invalid signatures without real cryptography.
type fakeSigner struct {
	ourKey      Key
	failVerify  map[Key]bool
	verifyErr   error
	getKeyErr   error
}

func (f fakeSigner) GetOurKey(context.Context, string) (Key, error) {
	if f.getKeyErr != nil {
		return "", f.getKeyErr
	}
	return f.ourKey, nil
}

func (f fakeSigner) Sign(_ context.Context, _ string, digest string) ([]byte, error) {
	return []byte(digest), nil
}

func (f fakeSigner) Verify(_ context.Context, key Key, digest string, value []byte) (bool, error) {
	if f.verifyErr != nil {
		return false, f.verifyErr
	}
	if f.failVerify[key] {
		return false, nil
	}
	return string(value) == digest, nil
}

func signedSignature(t *testing.T, r TrxRecord, typ SigType, key Key) Signature {
	t.Helper()
	var digest string
	var err error
	if typ.IsPromiseKind() {
		digest, err = PromiseDigest(r, typ.String())
	} else {
		digest, err = CommitDigest(r, typ.String())
	}
	require.NoError(t, err)
	return Signature{Type: typ, Key: key, Value: []byte(digest)}
}

func topologyOf(members map[Key]RoleSet) Topology {
	m := make(map[Key]Member, len(members))
	for k, roles := range members {
		m[k] = Member{Key: k, Roles: roles}
	}
	return Topology{Members: m}
}

func TestRoleEvaluatorRequestsOurPromiseWhenParticipantUnsigned(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant),
		"bob":   RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
	})
	e := RoleEvaluator{Signer: fakeSigner{ourKey: "alice"}}

	state, err := e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	require.True(t, state.OurPromiseNeeded)
	require.False(t, state.FullyPromised)
}

func TestRoleEvaluatorRejectsCommitsBeforeFullyPromised(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant),
		"bob":   RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
	})
	r.Promises = NewSignatureSet([]Signature{signedSignature(t, r, SigPromise, "alice")})
	r.Commits = NewSignatureSet([]Signature{signedSignature(t, r, SigCommit, "bob")})

	e := RoleEvaluator{Signer: fakeSigner{ourKey: "carol"}}
	_, err := e.Evaluate(context.Background(), r)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrOutOfPhaseCommit))
}

func TestRoleEvaluatorFullyPromisedRequestsOurCommit(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
		"bob":   RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
	})
	r.Promises = NewSignatureSet([]Signature{
		signedSignature(t, r, SigPromise, "alice"),
		signedSignature(t, r, SigPromise, "bob"),
	})

	e := RoleEvaluator{Signer: fakeSigner{ourKey: "alice"}}
	state, err := e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	require.True(t, state.FullyPromised)
	require.True(t, state.OurCommitNeeded)
	require.False(t, state.ConsensusCommitted)
}

func TestRoleEvaluatorDetectsConsensusAndFullCommit(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
		"bob":   RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
		"carol": RoleSet(0).WithRole(RoleReferee),
	})
	r.Promises = NewSignatureSet([]Signature{
		signedSignature(t, r, SigPromise, "alice"),
		signedSignature(t, r, SigPromise, "bob"),
	})
	r.Commits = NewSignatureSet([]Signature{
		signedSignature(t, r, SigCommit, "alice"),
		signedSignature(t, r, SigCommit, "bob"),
	})

	e := RoleEvaluator{Signer: fakeSigner{ourKey: "carol"}}
	state, err := e.Evaluate(context.Background(), r)
	require.NoError(t, err)
	require.True(t, state.ConsensusCommitted, "2 of 3 referees should clear the ceil(3/2)=2 quorum")
	require.False(t, state.FullyCommitted)
	require.True(t, state.OurCommitNeeded)
}

func TestRoleEvaluatorRejectsBadSignature(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant),
		"bob":   RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee),
	})
	r.Promises = NewSignatureSet([]Signature{{Type: SigPromise, Key: "alice", Value: []byte("garbage")}})

	e := RoleEvaluator{Signer: fakeSigner{ourKey: "bob"}}
	_, err := e.Evaluate(context.Background(), r)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrBadSignature))
}

func TestRoleEvaluatorRejectsUnknownSigner(t *testing.T) {
	r := sampleRecord(t)
	r.Topology = topologyOf(map[Key]RoleSet{
		"alice": RoleSet(0).WithRole(RoleParticipant),
	})
	r.Promises = NewSignatureSet([]Signature{signedSignature(t, r, SigPromise, "mallory")})

	e := RoleEvaluator{Signer: fakeSigner{ourKey: "alice"}}
	_, err := e.Evaluate(context.Background(), r)
	require.Error(t, err)
	require.True(t, IsKind(err, ErrUnknownSigner))
}
