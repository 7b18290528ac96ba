package protocol

import (
	"context"
	"math"
)

// RecordState is the role evaluator's output: what, if anything, this node
// must now do for the transaction.
type RecordState struct {
	OurPromiseNeeded   bool
	FullyPromised      bool
	OurCommitNeeded    bool
	ConsensusCommitted bool
	FullyCommitted     bool
}

// RoleEvaluator computes RecordState for a merged record, per spec §4.5.
// Any failure encountered while evaluating is fatal to the update that
// produced the record being evaluated.
type RoleEvaluator struct {
	Signer Signer
}

// Evaluate runs the ordered steps of spec §4.5 against a merged record.
func (e RoleEvaluator) Evaluate(ctx context.Context, record TrxRecord) (RecordState, error) {
	view := NewTopologyView(record.Topology)
	participants := view.Participants()
	referees := view.Referees()

	if key, dup := DuplicateKeysInSlice(record.Promises.Ordered()); dup {
		return RecordState{}, newFieldErr(ErrDuplicateSigner, "key", "duplicate promise key %s", key)
	}
	for _, key := range record.Promises.Keys() {
		if _, ok := participants[key]; !ok {
			return RecordState{}, newFieldErr(ErrUnknownSigner, "key", "promise key %s is not a participant", key)
		}
	}

	for _, sig := range record.Promises.Ordered() {
		promiseDigest, err := PromiseDigest(record, sig.Type.String())
		if err != nil {
			return RecordState{}, CapabilityError("digest", err)
		}
		ok, err := e.Signer.Verify(ctx, sig.Key, promiseDigest, sig.Value)
		if err != nil {
			return RecordState{}, CapabilityError("signer.verify", err)
		}
		if !ok {
			return RecordState{}, newFieldErr(ErrBadSignature, "promises", "promise signature for key %s does not verify", sig.Key)
		}
	}

	ourKey, err := e.Signer.GetOurKey(ctx, record.SessionCode)
	if err != nil {
		return RecordState{}, CapabilityError("signer.getOurKey", err)
	}

	_, weHavePromised := record.Promises.Get(ourKey)
	_, weAreParticipant := participants[ourKey]
	ourPromiseNeeded := weAreParticipant && !weHavePromised

	if ourPromiseNeeded {
		if record.Commits.Len() > 0 {
			return RecordState{}, newErr(ErrOutOfPhaseCommit, "commits present while this node's promise is still needed")
		}
		return RecordState{OurPromiseNeeded: true}, nil
	}

	fullyPromised := true
	for key := range participants {
		if _, ok := record.Promises.Get(key); !ok {
			fullyPromised = false
			break
		}
	}

	if !fullyPromised {
		if record.Commits.Len() > 0 {
			return RecordState{}, newErr(ErrOutOfPhaseCommit, "commits present before all participants have promised")
		}
		return RecordState{OurPromiseNeeded: false, FullyPromised: false}, nil
	}

	if key, dup := DuplicateKeysInSlice(record.Commits.Ordered()); dup {
		return RecordState{}, newFieldErr(ErrDuplicateSigner, "key", "duplicate commit key %s", key)
	}
	for _, key := range record.Commits.Keys() {
		if _, ok := referees[key]; !ok {
			return RecordState{}, newFieldErr(ErrUnknownSigner, "key", "commit key %s is not a referee", key)
		}
	}

	for _, sig := range record.Commits.Ordered() {
		commitDigest, err := CommitDigest(record, sig.Type.String())
		if err != nil {
			return RecordState{}, CapabilityError("digest", err)
		}
		ok, err := e.Signer.Verify(ctx, sig.Key, commitDigest, sig.Value)
		if err != nil {
			return RecordState{}, CapabilityError("signer.verify", err)
		}
		if !ok {
			return RecordState{}, newFieldErr(ErrBadSignature, "commits", "commit signature for key %s does not verify", sig.Key)
		}
	}

	_, weHaveCommitted := record.Commits.Get(ourKey)
	_, weAreReferee := referees[ourKey]
	ourCommitNeeded := weAreReferee && !weHaveCommitted

	quorum := int(math.Ceil(float64(len(referees)) / 2))
	consensusCommitted := record.Commits.Len() >= quorum
	fullyCommitted := record.Commits.Len() == len(referees)

	return RecordState{
		OurPromiseNeeded:   false,
		FullyPromised:      true,
		OurCommitNeeded:    ourCommitNeeded,
		ConsensusCommitted: consensusCommitted,
		FullyCommitted:     fullyCommitted,
	}, nil
}
