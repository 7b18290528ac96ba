package protocol

import (
	"context"
	"time"
)

// Signer is the host-supplied key management and signing capability. All
// methods are tolerant of being backed by asynchronous or remote
// implementations (e.g. an HSM), hence the context parameter.
type Signer interface {
	// GetOurKey derives this node's key for the given session, decoupling
	// node identity across transactions.
	GetOurKey(ctx context.Context, sessionCode string) (Key, error)
	// Sign produces a signature value over digest, under this node's key
	// for the session the digest belongs to.
	Sign(ctx context.Context, sessionCode string, digest string) ([]byte, error)
	// Verify reports whether value is a valid signature over digest under
	// key.
	Verify(ctx context.Context, key Key, digest string, value []byte) (bool, error)
}

// Storage is the host-supplied durable-state capability. The core reads
// and writes through it and never caches across invocations.
type Storage interface {
	// GetTransaction returns the prior record stored under transactionCode,
	// or (nil, false) if none exists yet.
	GetTransaction(ctx context.Context, transactionCode string) (*TrxRecord, bool, error)
	// PutTransaction persists the merged record as the new stored version
	// for its transactionCode.
	PutTransaction(ctx context.Context, record TrxRecord) error
	// SetPeerRecord idempotently records the last-known record observed
	// from peerKey.
	SetPeerRecord(ctx context.Context, peerKey Key, record TrxRecord) error
	// GetPeerRecord returns the last-known record observed from peerKey for
	// transactionCode, or (nil, false) if none is known.
	GetPeerRecord(ctx context.Context, peerKey Key, transactionCode string) (*TrxRecord, bool, error)
	// PushPeerRecord is the transport hook: it delivers record to peerKey.
	// The core treats this as opaque; failures are surfaced to the caller
	// of Update after all pushes for the call have settled.
	PushPeerRecord(ctx context.Context, peerKey Key, record TrxRecord) error
	// LogInvalid records a record that failed validation together with the
	// error that rejected it.
	LogInvalid(ctx context.Context, record TrxRecord, cause error) error
}

// Decider is the host-supplied policy capability: whether this node
// approves a promise or a commit for a given (already role-evaluated)
// record.
type Decider interface {
	ShouldPromise(ctx context.Context, record TrxRecord) (bool, error)
	ShouldCommit(ctx context.Context, record TrxRecord) (bool, error)
}

// ApprovalDeadlinePolicy resolves spec §9's open question on whether
// "approved" requires a deadline to have passed (giving peers time to
// assemble) or to still be in the future (hard cut-off). Both directions
// are implemented; the host selects one via Config.
type ApprovalDeadlinePolicy uint8

const (
	// DeadlineMustHavePassed requires now >= the relevant due-time before a
	// positive decision is honored (the literal spec.md §4.6/§4.7 reading:
	// promisesDue/commitsDue compared with <= now). This is the default.
	DeadlineMustHavePassed ApprovalDeadlinePolicy = iota
	// DeadlineNotYetPassed requires now <= the relevant due-time: a hard
	// cut-off after which approval is no longer honored even if the decider
	// would have approved.
	DeadlineNotYetPassed
)

// CodeOptions parametrizes the randomness check applied to
// transactionCode/sessionCode.
type CodeOptions struct {
	// MinLength is the minimum byte length a code must decode to.
	MinLength int
	// MinEntropyBitsPerByte is the minimum Shannon entropy (bits/byte) a
	// code's decoded bytes must exhibit to be accepted.
	MinEntropyBitsPerByte float64
}

// TimingOptions parametrizes temporal validation and approval semantics.
type TimingOptions struct {
	// MinPromiseTime is the minimum duration, in milliseconds, required
	// between Start and PromisesDue.
	MinPromiseTimeMillis int64
	// ApprovalDeadlinePolicy selects which direction of deadline comparison
	// turns a decider's approval into an actual positive signature.
	ApprovalDeadlinePolicy ApprovalDeadlinePolicy
}

// Config bundles the capability-agnostic policy knobs the core needs.
type Config struct {
	Code   CodeOptions
	Timing TimingOptions
}

// Clock abstracts "now" so tests can control temporal validation
// deterministically; production callers pass RealClock{}.
type Clock interface {
	NowMillis() int64
}

// RealClock is the production Clock, backed by time.Now.
type RealClock struct{}

// NowMillis returns the current wall-clock time in milliseconds since epoch.
func (RealClock) NowMillis() int64 { return time.Now().UnixMilli() }
