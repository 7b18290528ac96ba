package protocol

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// canonicalJSON re-encodes arbitrary JSON bytes into a deterministic form:
// decoding into interface{} and re-marshaling relies on encoding/json's
// built-in behavior of sorting map keys lexicographically for every
// string-keyed map it encounters, which is sufficient to make the output
// byte-identical across producers that agree on field values, regardless of
// how the caller originally ordered object keys.
func canonicalJSON(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("protocol: payload is not valid JSON: %w", err)
	}
	return json.Marshal(v)
}

// canonicalTopologyJSON produces a deterministic encoding of a Topology.
// Topology.Members is a Go map keyed by Key (a string type), and
// encoding/json sorts string-keyed maps by key when marshaling, so the
// member mapping is already canonical; Links preserve the order given by
// the caller, per spec §9's adopted "flag-plus-list" wire shape (link order
// is part of topology identity).
func canonicalTopologyJSON(t Topology) ([]byte, error) {
	// AgentSecret is deliberately excluded: it is opaque and agent-local
	// (see TrxRecord's AgentSecret field doc), so two honest nodes may hold
	// different values for the same member and must still agree on the
	// digest.
	type wireMember struct {
		Address string `json:"address,omitempty"`
		Roles   uint8  `json:"roles"`
	}
	type wireLink struct {
		SourceKey string `json:"sourceKey"`
		TargetKey string `json:"targetKey"`
		Nonce     string `json:"nonce"`
		Terms     string `json:"terms"`
	}
	type wireTopology struct {
		Links   []wireLink            `json:"links"`
		Members map[string]wireMember `json:"members"`
	}

	wt := wireTopology{
		Links:   make([]wireLink, 0, len(t.Links)),
		Members: make(map[string]wireMember, len(t.Members)),
	}
	for _, l := range t.Links {
		wt.Links = append(wt.Links, wireLink{
			SourceKey: string(l.SourceKey),
			TargetKey: string(l.TargetKey),
			Nonce:     l.Nonce,
			Terms:     l.Terms,
		})
	}
	for k, m := range t.Members {
		wt.Members[string(k)] = wireMember{Address: m.Address, Roles: uint8(m.Roles)}
	}
	return json.Marshal(wt)
}

// additionalDatum is anything the base digest's additionalData list can
// carry: either a pre-stringified token (sig type) or a JSON-marshalable
// value (a promise Signature entry).
type additionalDatum interface {
	digestToken() (string, error)
}

type stringDatum string

func (s stringDatum) digestToken() (string, error) { return string(s), nil }

type signatureDatum Signature

func (s signatureDatum) digestToken() (string, error) {
	b, err := json.Marshal(struct {
		Type  int    `json:"type"`
		Key   string `json:"key"`
		Value string `json:"value"`
	}{
		Type:  int(s.Type),
		Key:   string(s.Key),
		Value: base64.StdEncoding.EncodeToString(s.Value),
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// baseDigest computes the SHA-256, base64-encoded digest over the record's
// immutable fields plus a caller-supplied additionalData list, concatenated
// in the exact order specified by spec §4.1.
func baseDigest(r TrxRecord, additionalData []additionalDatum) (string, error) {
	payloadJSON, err := canonicalJSON(r.Payload)
	if err != nil {
		return "", err
	}
	topologyJSON, err := canonicalTopologyJSON(r.Topology)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(r.TransactionCode))
	h.Write([]byte(r.SessionCode))
	h.Write(payloadJSON)
	h.Write(topologyJSON)
	h.Write([]byte(strconv.FormatInt(r.Start, 10)))
	h.Write([]byte(strconv.FormatInt(r.PromisesDue, 10)))
	h.Write([]byte(strconv.FormatInt(r.CommitsDue, 10)))
	for _, d := range additionalData {
		tok, err := d.digestToken()
		if err != nil {
			return "", err
		}
		h.Write([]byte(tok))
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// PromiseDigest computes the promise digest. callerExtras is typically
// empty when verifying an existing signature and []string{sigType.String()}
// when a node signs its own promise.
func PromiseDigest(r TrxRecord, callerExtras ...string) (string, error) {
	data := make([]additionalDatum, 0, len(callerExtras))
	for _, e := range callerExtras {
		data = append(data, stringDatum(e))
	}
	return baseDigest(r, data)
}

// CommitDigest computes the commit digest: the base digest with
// additionalData = the JSON of every promise signature in stored order,
// followed by callerExtras. Because the commit digest binds the exact set
// and order of promise signatures, any record that reorders promises after
// a commit was signed becomes unverifiable against that commit.
func CommitDigest(r TrxRecord, callerExtras ...string) (string, error) {
	promises := r.Promises.Ordered()
	data := make([]additionalDatum, 0, len(promises)+len(callerExtras))
	for _, p := range promises {
		data = append(data, signatureDatum(p))
	}
	for _, e := range callerExtras {
		data = append(data, stringDatum(e))
	}
	return baseDigest(r, data)
}
