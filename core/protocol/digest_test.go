package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T) TrxRecord {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	return TrxRecord{
		TransactionCode: "tx-1",
		SessionCode:     "sess-1",
		Payload:         payload,
		Topology: Topology{
			Links: []Link{{SourceKey: "alice", TargetKey: "bob", Nonce: "n1", Terms: "t1"}},
			Members: map[Key]Member{
				"alice": {Key: "alice", Roles: RoleSet(0).WithRole(RoleParticipant)},
				"bob":   {Key: "bob", Roles: RoleSet(0).WithRole(RoleParticipant).WithRole(RoleReferee)},
			},
		},
		Start:       1_000,
		PromisesDue: 2_000,
		CommitsDue:  3_000,
	}
}

func TestCanonicalJSONSortsObjectKeysRegardlessOfInputOrder(t *testing.T) {
	a, err := canonicalJSON([]byte(`{"b":2,"a":1}`))
	require.NoError(t, err)
	b, err := canonicalJSON([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestCanonicalJSONEmptyPayloadIsNull(t *testing.T) {
	out, err := canonicalJSON(nil)
	require.NoError(t, err)
	require.Equal(t, "null", string(out))
}

func TestPromiseDigestIsDeterministic(t *testing.T) {
	r := sampleRecord(t)
	d1, err := PromiseDigest(r)
	require.NoError(t, err)
	d2, err := PromiseDigest(r)
	require.NoError(t, err)
	require.Equal(t, d1, d2)
}

func TestPromiseDigestChangesWithPayloadKeyOrderOnly(t *testing.T) {
	r1 := sampleRecord(t)
	r2 := sampleRecord(t)
	r2.Payload, _ = json.Marshal(map[string]any{"a": 1, "b": 2})

	d1, err := PromiseDigest(r1)
	require.NoError(t, err)
	d2, err := PromiseDigest(r2)
	require.NoError(t, err)
	require.Equal(t, d1, d2, "canonical encoding should make key order irrelevant to the digest")
}

func TestPromiseDigestChangesWithCallerExtras(t *testing.T) {
	r := sampleRecord(t)
	plain, err := PromiseDigest(r)
	require.NoError(t, err)
	withExtra, err := PromiseDigest(r, SigPromise.String())
	require.NoError(t, err)
	require.NotEqual(t, plain, withExtra)
}

func TestCommitDigestBindsPromiseSignatureOrder(t *testing.T) {
	r := sampleRecord(t)
	r.Promises = NewSignatureSet([]Signature{
		{Type: SigPromise, Key: "alice", Value: []byte("siga")},
		{Type: SigPromise, Key: "bob", Value: []byte("sigb")},
	})
	reordered := r
	reordered.Promises = NewSignatureSet([]Signature{
		{Type: SigPromise, Key: "bob", Value: []byte("sigb")},
		{Type: SigPromise, Key: "alice", Value: []byte("siga")},
	})

	d1, err := CommitDigest(r)
	require.NoError(t, err)
	d2, err := CommitDigest(reordered)
	require.NoError(t, err)
	require.NotEqual(t, d1, d2, "commit digest must bind the exact order promises were stored in")
}

func TestBaseDigestChangesWithEachImmutableField(t *testing.T) {
	base := sampleRecord(t)
	baseDigest, err := PromiseDigest(base)
	require.NoError(t, err)

	mutate := func(fn func(r *TrxRecord)) string {
		r := sampleRecord(t)
		fn(&r)
		d, err := PromiseDigest(r)
		require.NoError(t, err)
		return d
	}

	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) { r.TransactionCode = "tx-2" }))
	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) { r.SessionCode = "sess-2" }))
	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) { r.Start = 5_000 }))
	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) { r.PromisesDue = 9_000 }))
	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) { r.CommitsDue = 9_000 }))
	require.NotEqual(t, baseDigest, mutate(func(r *TrxRecord) {
		r.Topology.Members["carol"] = Member{Key: "carol"}
	}))
}

func TestPromiseDigestIgnoresAgentSecret(t *testing.T) {
	r1 := sampleRecord(t)
	alice := r1.Topology.Members["alice"]
	alice.AgentSecret = []byte("alices-local-secret")
	r1.Topology.Members["alice"] = alice

	r2 := sampleRecord(t)
	alice2 := r2.Topology.Members["alice"]
	alice2.AgentSecret = []byte("a-completely-different-secret")
	r2.Topology.Members["alice"] = alice2

	d1, err := PromiseDigest(r1)
	require.NoError(t, err)
	d2, err := PromiseDigest(r2)
	require.NoError(t, err)
	require.Equal(t, d1, d2, "AgentSecret is opaque/agent-local and must never affect the shared digest")
}
