package protocol

import "bytes"

// MergeSignatures merges incoming into prior per spec §4.2: incoming is
// walked in insertion order; a key already present in prior must match
// exactly on (type, value) or the merge fails with ErrSignatureMutated.
// Keys present only in prior are retained; keys present only in incoming
// are appended after the retained entries. The result is a brand-new
// SignatureSet; neither input is mutated.
func MergeSignatures(prior, incoming SignatureSet) (SignatureSet, error) {
	merged := make([]Signature, 0, prior.Len()+incoming.Len())
	seen := make(map[Key]struct{}, prior.Len()+incoming.Len())

	for _, key := range prior.Keys() {
		sig, _ := prior.Get(key)
		merged = append(merged, sig)
		seen[key] = struct{}{}
	}

	for _, key := range incoming.Keys() {
		incomingSig, _ := incoming.Get(key)
		if priorSig, ok := prior.Get(key); ok {
			if priorSig.Type != incomingSig.Type || !bytes.Equal(priorSig.Value, incomingSig.Value) {
				return SignatureSet{}, newFieldErr(ErrSignatureMutated, "key",
					"signature for key %s changed between prior and incoming records", key)
			}
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		merged = append(merged, incomingSig)
		seen[key] = struct{}{}
	}

	return NewSignatureSet(merged), nil
}
