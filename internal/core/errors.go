package core

import (
	"errors"
	"fmt"
)

// Kind classifies errors so callers can branch on category instead of
// message text.
type Kind int

const (
	// KindNotFound: a referenced pot, transaction, rule or period does not exist.
	KindNotFound Kind = iota + 1
	// KindValidation: malformed request, rejected before any mutation.
	KindValidation
	// KindUpstream: an external collaborator (bank feed) failed or timed out.
	KindUpstream
	// KindInvariant: internal ledger inconsistency. Should never reach a caller.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_failed"
	case KindUpstream:
		return "upstream_unavailable"
	case KindInvariant:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error is the typed error used across the ledger.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the kind from an error chain, or 0 for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Invalidf builds a KindValidation error.
func Invalidf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Upstreamf builds a KindUpstream error wrapping the collaborator failure.
func Upstreamf(err error, format string, args ...any) error {
	return &Error{Kind: KindUpstream, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Invariantf builds a KindInvariant error. Treated as fatal in tests.
func Invariantf(format string, args ...any) error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel validation errors for common bad inputs.
var (
	ErrInvalidAmount       = &Error{Kind: KindValidation, Msg: "invalid amount"}
	ErrEmptyName           = &Error{Kind: KindValidation, Msg: "empty name"}
	ErrDuplicateName       = &Error{Kind: KindValidation, Msg: "duplicate pot name"}
	ErrEmptyMerchant       = &Error{Kind: KindValidation, Msg: "empty merchant name"}
	ErrEmptyPattern        = &Error{Kind: KindValidation, Msg: "empty merchant pattern"}
	ErrUnknownFrequency    = &Error{Kind: KindValidation, Msg: "unrecognized billing frequency"}
	ErrMissingAllocation   = &Error{Kind: KindValidation, Msg: "rollover request missing allocation for existing pot"}
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Msg: "transaction not found"}
	ErrPotNotFound         = &Error{Kind: KindNotFound, Msg: "pot not found"}
	ErrPeriodNotFound      = &Error{Kind: KindNotFound, Msg: "period not found"}
)
