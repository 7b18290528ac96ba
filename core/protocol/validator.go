package protocol

import (
	"encoding/hex"
	"math"
	"reflect"
)

// SessionKnowledgeChecker is an optional host extension point for
// cross-checking a new record's session against whatever session registry
// the host maintains. Spec §9 leaves this as a TODO in the source with no
// concrete check; nil means "no additional check is performed."
type SessionKnowledgeChecker func(record TrxRecord) error

// Validator implements the structural/temporal/crypto legality checks of
// spec §4.4.
type Validator struct {
	Config      Config
	Clock       Clock
	SessionHook SessionKnowledgeChecker
}

// checkCodeEntropy applies the configured randomness predicate to a code
// string. Codes are expected to be hex-encoded; if decoding fails the raw
// bytes of the string are used instead so non-hex high-entropy identifiers
// are not unfairly rejected.
func (v Validator) checkCodeEntropy(code string) error {
	raw, err := hex.DecodeString(code)
	if err != nil || len(raw) == 0 {
		raw = []byte(code)
	}
	if len(raw) < v.Config.Code.MinLength {
		return newFieldErr(ErrCodeEntropyTooLow, "code", "code %q decodes to %d bytes, need >= %d", code, len(raw), v.Config.Code.MinLength)
	}
	if shannonEntropyPerByte(raw) < v.Config.Code.MinEntropyBitsPerByte {
		return newFieldErr(ErrCodeEntropyTooLow, "code", "code %q has insufficient entropy", code)
	}
	return nil
}

func shannonEntropyPerByte(data []byte) float64 {
	if len(data) == 0 {
		return 0
	}
	var counts [256]int
	for _, b := range data {
		counts[b]++
	}
	entropy := 0.0
	n := float64(len(data))
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// ValidateNew applies spec §4.4's validateNew checks, used when no prior
// record exists for the transaction.
func (v Validator) ValidateNew(record TrxRecord) error {
	if err := v.checkCodeEntropy(record.TransactionCode); err != nil {
		return err
	}
	if err := v.checkCodeEntropy(record.SessionCode); err != nil {
		return err
	}
	now := v.Clock.NowMillis()
	if record.Start > now {
		return newFieldErr(ErrTemporalViolation, "start", "start %d is in the future (now=%d)", record.Start, now)
	}
	if record.PromisesDue < record.Start+v.Config.Timing.MinPromiseTimeMillis {
		return newFieldErr(ErrTemporalViolation, "promisesDue",
			"promisesDue %d is earlier than start+minPromiseTime (%d)", record.PromisesDue, record.Start+v.Config.Timing.MinPromiseTimeMillis)
	}
	if v.SessionHook != nil {
		if err := v.SessionHook(record); err != nil {
			return err
		}
	}
	return nil
}

// ValidateUpdate applies spec §4.4's validateUpdate checks: the immutable
// fields must match prior by deep equality.
func (v Validator) ValidateUpdate(prior, incoming TrxRecord) error {
	if prior.TransactionCode != incoming.TransactionCode {
		return newFieldErr(ErrFieldMismatch, "transactionCode", "transactionCode changed")
	}
	if prior.SessionCode != incoming.SessionCode {
		return newFieldErr(ErrFieldMismatch, "sessionCode", "sessionCode changed")
	}
	priorPayload, err := canonicalJSON(prior.Payload)
	if err != nil {
		return newFieldErr(ErrFieldMismatch, "payload", "prior payload invalid: %v", err)
	}
	incomingPayload, err := canonicalJSON(incoming.Payload)
	if err != nil {
		return newFieldErr(ErrFieldMismatch, "payload", "incoming payload invalid: %v", err)
	}
	if string(priorPayload) != string(incomingPayload) {
		return newFieldErr(ErrFieldMismatch, "payload", "payload changed")
	}
	if !reflect.DeepEqual(prior.Topology, incoming.Topology) {
		return newFieldErr(ErrFieldMismatch, "topology", "topology changed")
	}
	if prior.Start != incoming.Start {
		return newFieldErr(ErrFieldMismatch, "start", "start changed")
	}
	if prior.PromisesDue != incoming.PromisesDue {
		return newFieldErr(ErrFieldMismatch, "promisesDue", "promisesDue changed")
	}
	if prior.CommitsDue != incoming.CommitsDue {
		return newFieldErr(ErrFieldMismatch, "commitsDue", "commitsDue changed")
	}
	return nil
}

// Merge implements spec §4.4's Merger: returns incoming when no prior
// exists; otherwise returns a new record carrying the immutable fields
// (already validated equal) and the signature-merge of prior and incoming.
func (v Validator) Merge(prior *TrxRecord, incoming TrxRecord) (TrxRecord, error) {
	if prior == nil {
		if err := v.ValidateNew(incoming); err != nil {
			return TrxRecord{}, err
		}
		return incoming.Clone(), nil
	}
	if err := v.ValidateUpdate(*prior, incoming); err != nil {
		return TrxRecord{}, err
	}
	mergedPromises, err := MergeSignatures(prior.Promises, incoming.Promises)
	if err != nil {
		return TrxRecord{}, err
	}
	mergedCommits, err := MergeSignatures(prior.Commits, incoming.Commits)
	if err != nil {
		return TrxRecord{}, err
	}
	merged := prior.Clone()
	merged.Promises = mergedPromises
	merged.Commits = mergedCommits
	return merged, nil
}
