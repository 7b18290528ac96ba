package protocol

import "fmt"

// ErrorKind enumerates the abstract protocol error categories from spec §7.
type ErrorKind string

const (
	ErrCodeEntropyTooLow ErrorKind = "code_entropy_too_low"
	ErrTemporalViolation ErrorKind = "temporal_violation"
	ErrFieldMismatch     ErrorKind = "field_mismatch"
	ErrDuplicateSigner   ErrorKind = "duplicate_signature"
	ErrUnknownSigner     ErrorKind = "unknown_signer"
	ErrBadSignature      ErrorKind = "bad_signature"
	ErrOutOfPhaseCommit  ErrorKind = "out_of_phase_commit"
	ErrSignatureMutated  ErrorKind = "signature_mutated"
	ErrCapability        ErrorKind = "capability_error"
)

// ProtocolError is the concrete error type raised for every protocol
// violation. All protocol errors terminate the current update, are logged
// once to the invalid sink, and are re-raised to the caller unchanged.
type ProtocolError struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *ProtocolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func newFieldErr(kind ErrorKind, field, format string, args ...any) *ProtocolError {
	return &ProtocolError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}

// CapabilityError wraps an error returned by a host capability (Signer,
// Storage, Decider) so callers can distinguish protocol violations from
// passthrough infrastructure failures.
func CapabilityError(source string, cause error) *ProtocolError {
	return &ProtocolError{Kind: ErrCapability, Message: fmt.Sprintf("capability %s failed", source), Cause: cause}
}

// IsKind reports whether err is a *ProtocolError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	pe, ok := err.(*ProtocolError)
	return ok && pe.Kind == kind
}
