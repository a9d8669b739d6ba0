package contracts

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can choose a retry policy per kind.
type Kind string

const (
	KindInvalidInput        Kind = "InvalidInputKind"    // malformed commitment or packet input
	KindMissingSigner       Kind = "MissingSigner"       // write attempted without credentials
	KindSubmissionRejected  Kind = "SubmissionRejected"  // ledger refused or reverted the transaction
	KindConfirmationTimeout Kind = "ConfirmationTimeout" // broadcast accepted, inclusion not observed in time
	KindNetworkUnavailable  Kind = "NetworkUnavailable"  // ledger endpoint unreachable
	KindDecode              Kind = "DecodeError"         // a single log entry could not be decoded
	KindPolicyDenied        Kind = "PolicyDenied"        // admission policy refused the packet
)

// Outcome describes what the caller can assume about the ledger after a failure.
type Outcome string

const (
	OutcomeInvalid      Outcome = "invalid"       // caller error, nothing was sent
	OutcomeFailed       Outcome = "failed"        // definitely not recorded
	OutcomeUnknown      Outcome = "unknown"       // may still land; re-check before resubmitting
	OutcomeNotAttempted Outcome = "not_attempted" // ledger never reached
)

// Outcome returns the ledger-state guarantee associated with k.
func (k Kind) Outcome() Outcome {
	switch k {
	case KindSubmissionRejected:
		return OutcomeFailed
	case KindConfirmationTimeout:
		return OutcomeUnknown
	case KindNetworkUnavailable:
		return OutcomeNotAttempted
	default:
		return OutcomeInvalid
	}
}

// Retryable reports whether an automatic retry with backoff is safe.
func (k Kind) Retryable() bool {
	return k == KindNetworkUnavailable
}

// Error is the typed error returned by every exposed operation.
type Error struct {
	Kind   Kind
	Op     string // operation that failed, e.g. "submit.broadcast"
	TxHash string // set once a transaction hash is known
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.TxHash != "" {
		msg += " (tx " + e.TxHash + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
	ErrMissingSigner       = &Error{Kind: KindMissingSigner}
	ErrSubmissionRejected  = &Error{Kind: KindSubmissionRejected}
	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout}
	ErrNetworkUnavailable  = &Error{Kind: KindNetworkUnavailable}
	ErrDecode              = &Error{Kind: KindDecode}
	ErrPolicyDenied        = &Error{Kind: KindPolicyDenied}
)

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithTx returns a copy of e annotated with a transaction hash.
func (e *Error) WithTx(txHash string) *Error {
	cp := *e
	cp.TxHash = txHash
	return &cp
}

// KindOf returns the kind of the first *Error in err's chain, or "" when the
// error is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
