package state

import (
	"errors"
	"fmt"
)

// Kind is a stable label identifying the category of a ledger error.
type Kind string

// Set of error kinds the ledger produces.
const (
	KindNotInitialized        Kind = "NotInitialized"
	KindDuplicateWallet       Kind = "DuplicateWallet"
	KindNotFound              Kind = "NotFound"
	KindInvalidOperation      Kind = "InvalidOperation"
	KindInvalidFormat         Kind = "InvalidFormat"
	KindMissingField          Kind = "MissingField"
	KindInvalidAmount         Kind = "InvalidAmount"
	KindSelfTransfer          Kind = "SelfTransfer"
	KindInvalidWallet         Kind = "InvalidWallet"
	KindForbidden             Kind = "Forbidden"
	KindInsufficientFunds     Kind = "InsufficientFunds"
	KindNoPendingTransactions Kind = "NoPendingTransactions"
	KindChainInconsistency    Kind = "ChainInconsistency"
	KindCrypto                Kind = "Crypto"
	KindStorage               Kind = "Storage"
)

// Set of sentinel errors for use with errors.Is. Any ledger error of the same
// kind matches, whatever its message.
var (
	ErrNotInitialized        = &Error{Kind: KindNotInitialized}
	ErrDuplicateWallet       = &Error{Kind: KindDuplicateWallet}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidOperation      = &Error{Kind: KindInvalidOperation}
	ErrInvalidFormat         = &Error{Kind: KindInvalidFormat}
	ErrMissingField          = &Error{Kind: KindMissingField}
	ErrInvalidAmount         = &Error{Kind: KindInvalidAmount}
	ErrSelfTransfer          = &Error{Kind: KindSelfTransfer}
	ErrInvalidWallet         = &Error{Kind: KindInvalidWallet}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrInsufficientFunds     = &Error{Kind: KindInsufficientFunds}
	ErrNoPendingTransactions = &Error{Kind: KindNoPendingTransactions}
	ErrChainInconsistency    = &Error{Kind: KindChainInconsistency}
	ErrCrypto                = &Error{Kind: KindCrypto}
	ErrStorage               = &Error{Kind: KindStorage}
)

// =============================================================================

// Error is the error returned by ledger operations. The message is safe to
// show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// wrapError keeps the underlying error available to errors.Is and errors.As
// while only exposing the message.
func wrapError(kind Kind, err error, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any ledger error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// =============================================================================

// ChainInconsistencyError is returned when validation finds a block that
// doesn't fit the chain.
type ChainInconsistencyError struct {
	Index uint64
	Err   error
}

// Error implements the error interface.
func (e *ChainInconsistencyError) Error() string {
	return fmt.Sprintf("chain inconsistency at block %d: %s", e.Index, e.Err)
}

// Unwrap returns the validation failure.
func (e *ChainInconsistencyError) Unwrap() error {
	return e.Err
}

// Is matches ErrChainInconsistency.
func (e *ChainInconsistencyError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindChainInconsistency
}

// =============================================================================

// KindOf returns the kind of a ledger error. An empty kind is returned for
// errors that didn't come from the ledger.
func KindOf(err error) Kind {
	var ce *ChainInconsistencyError
	if errors.As(err, &ce) {
		return KindChainInconsistency
	}

	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}

	return ""
}
