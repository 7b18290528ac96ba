package protocol

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Metrics is the optional observability hook the driver reports operation
// counts through. A nil Metrics is valid and means "don't record."
type Metrics interface {
	UpdateProcessed(kind string)
	UpdateRejected(errKind ErrorKind)
	PushAttempted(peer Key)
	PushFailed(peer Key)
	RecordState(transactionCode string, state RecordState)
	ArchiveFailed(transactionCode string)
}

// Tracer is the optional tracing hook the driver wraps its stages with. A
// nil Tracer is valid and means "don't trace." Span must be called; it
// returns a context (possibly the same one) and a function to end the span.
type Tracer interface {
	Span(ctx context.Context, name string) (context.Context, func())
}

type noopMetrics struct{}

func (noopMetrics) UpdateProcessed(string)                {}
func (noopMetrics) UpdateRejected(ErrorKind)               {}
func (noopMetrics) PushAttempted(Key)                      {}
func (noopMetrics) PushFailed(Key)                         {}
func (noopMetrics) RecordState(string, RecordState)        {}
func (noopMetrics) ArchiveFailed(string)                   {}

type noopTracer struct{}

func (noopTracer) Span(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

// Archiver receives every record that reaches RecordState.FullyCommitted,
// for durable audit export. It is optional; a nil Archiver means no record
// is archived. Archiver errors are never fatal to Update — see the call
// site below.
type Archiver interface {
	Archive(ctx context.Context, record TrxRecord, state RecordState) error
}

// Driver is the participant driver of spec §4.6: the single entry point
// orchestrating update -> validate+merge -> role -> sign -> gossip.
type Driver struct {
	Storage   Storage
	Signer    Signer
	Decider   Decider
	Validator Validator
	Evaluator RoleEvaluator
	Clock     Clock
	Metrics   Metrics
	Tracer    Tracer
	Archiver  Archiver
}

func (d Driver) metrics() Metrics {
	if d.Metrics == nil {
		return noopMetrics{}
	}
	return d.Metrics
}

func (d Driver) tracer() Tracer {
	if d.Tracer == nil {
		return noopTracer{}
	}
	return d.Tracer
}

// Update is the driver's single entry point. fromKey, when non-empty,
// identifies the peer the record was received from.
func (d Driver) Update(ctx context.Context, record TrxRecord, fromKey Key) (TrxRecord, error) {
	ctx, end := d.tracer().Span(ctx, "protocol.Update")
	defer end()

	if fromKey != "" {
		if err := d.Storage.SetPeerRecord(ctx, fromKey, record); err != nil {
			return TrxRecord{}, CapabilityError("storage.setPeerRecord", err)
		}
	}

	prior, hasPrior, err := d.Storage.GetTransaction(ctx, record.TransactionCode)
	if err != nil {
		return TrxRecord{}, CapabilityError("storage.getTransaction", err)
	}
	if !hasPrior {
		prior = nil
	}

	merged, err := d.Validator.Merge(prior, record)
	if err != nil {
		d.metrics().UpdateRejected(kindOf(err))
		if logErr := d.Storage.LogInvalid(ctx, record, err); logErr != nil {
			return TrxRecord{}, CapabilityError("storage.logInvalid", logErr)
		}
		return TrxRecord{}, err
	}

	state, err := d.Evaluator.Evaluate(ctx, merged)
	if err != nil {
		d.metrics().UpdateRejected(kindOf(err))
		if logErr := d.Storage.LogInvalid(ctx, merged, err); logErr != nil {
			return TrxRecord{}, CapabilityError("storage.logInvalid", logErr)
		}
		return TrxRecord{}, err
	}

	ourKey, err := d.Signer.GetOurKey(ctx, merged.SessionCode)
	if err != nil {
		return TrxRecord{}, CapabilityError("signer.getOurKey", err)
	}

	switch {
	case state.OurPromiseNeeded:
		merged, err = d.signPromise(ctx, merged, ourKey)
		if err != nil {
			return TrxRecord{}, err
		}
	case state.OurCommitNeeded:
		merged, err = d.signCommit(ctx, merged, ourKey)
		if err != nil {
			return TrxRecord{}, err
		}
	}

	if err := d.Storage.PutTransaction(ctx, merged); err != nil {
		return TrxRecord{}, CapabilityError("storage.putTransaction", err)
	}

	d.metrics().UpdateProcessed("ok")
	d.metrics().RecordState(merged.TransactionCode, state)

	if state.FullyCommitted && d.Archiver != nil {
		if err := d.Archiver.Archive(ctx, merged, state); err != nil {
			d.metrics().ArchiveFailed(merged.TransactionCode)
		}
	}

	if err := d.gossip(ctx, merged, ourKey); err != nil {
		return merged, err
	}
	return merged, nil
}

func (d Driver) signPromise(ctx context.Context, merged TrxRecord, ourKey Key) (TrxRecord, error) {
	approved, err := d.Decider.ShouldPromise(ctx, merged)
	if err != nil {
		return TrxRecord{}, CapabilityError("decider.shouldPromise", err)
	}
	deadlineOK := deadlinePassesPolicy(d.Validator.Config.Timing.ApprovalDeadlinePolicy, d.Clock.NowMillis(), merged.PromisesDue)
	sigType := SigNoPromise
	if approved && deadlineOK {
		sigType = SigPromise
	}
	digest, err := PromiseDigest(merged, sigType.String())
	if err != nil {
		return TrxRecord{}, CapabilityError("digest", err)
	}
	value, err := d.Signer.Sign(ctx, merged.SessionCode, digest)
	if err != nil {
		return TrxRecord{}, CapabilityError("signer.sign", err)
	}
	out := merged.Clone()
	sigs, err := MergeSignatures(out.Promises, NewSignatureSet([]Signature{{Type: sigType, Key: ourKey, Value: value}}))
	if err != nil {
		return TrxRecord{}, err
	}
	out.Promises = sigs
	return out, nil
}

func (d Driver) signCommit(ctx context.Context, merged TrxRecord, ourKey Key) (TrxRecord, error) {
	approved, err := d.Decider.ShouldCommit(ctx, merged)
	if err != nil {
		return TrxRecord{}, CapabilityError("decider.shouldCommit", err)
	}
	deadlineOK := deadlinePassesPolicy(d.Validator.Config.Timing.ApprovalDeadlinePolicy, d.Clock.NowMillis(), merged.CommitsDue)
	sigType := SigNoCommit
	if approved && deadlineOK {
		sigType = SigCommit
	}
	digest, err := CommitDigest(merged, sigType.String())
	if err != nil {
		return TrxRecord{}, CapabilityError("digest", err)
	}
	value, err := d.Signer.Sign(ctx, merged.SessionCode, digest)
	if err != nil {
		return TrxRecord{}, CapabilityError("signer.sign", err)
	}
	out := merged.Clone()
	sigs, err := MergeSignatures(out.Commits, NewSignatureSet([]Signature{{Type: sigType, Key: ourKey, Value: value}}))
	if err != nil {
		return TrxRecord{}, err
	}
	out.Commits = sigs
	return out, nil
}

// deadlinePassesPolicy resolves spec §9's open question: whether approval
// requires the deadline to have passed (DeadlineMustHavePassed, the
// default) or to still be in the future (DeadlineNotYetPassed).
func deadlinePassesPolicy(policy ApprovalDeadlinePolicy, now, due int64) bool {
	switch policy {
	case DeadlineNotYetPassed:
		return now <= due
	default:
		return now >= due
	}
}

// gossip fans the final record out to every reachable peer whose
// storage-recorded last-known record is absent or stale. Pushes run in
// parallel; individual push failures propagate only after all have been
// awaited.
func (d Driver) gossip(ctx context.Context, record TrxRecord, ourKey Key) error {
	peers := NewTopologyView(record.Topology).ReachablePeers(ourKey)

	g, gctx := errgroup.WithContext(ctx)
	for _, peer := range peers {
		peer := peer
		g.Go(func() error {
			last, ok, err := d.Storage.GetPeerRecord(gctx, peer, record.TransactionCode)
			if err != nil {
				return CapabilityError("storage.getPeerRecord", err)
			}
			if ok && !isStale(*last, record) {
				return nil
			}
			d.metrics().PushAttempted(peer)
			if err := d.Storage.PushPeerRecord(gctx, peer, record); err != nil {
				d.metrics().PushFailed(peer)
				return CapabilityError("storage.pushPeerRecord", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// isStale reports whether last has fewer signatures than current in either
// promises or commits.
func isStale(last, current TrxRecord) bool {
	return last.Promises.Len() < current.Promises.Len() || last.Commits.Len() < current.Commits.Len()
}

func kindOf(err error) ErrorKind {
	if pe, ok := err.(*ProtocolError); ok {
		return pe.Kind
	}
	return ErrCapability
}
