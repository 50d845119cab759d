// Package errs provides types and support related to web v1 functionality.
package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/walletchain/foundation/blockchain/state"
)

// Response is the form used for API responses from failures in the API.
type Response struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Trusted is used to pass an error during the request through the
// application with web specific context.
type Trusted struct {
	Err    error
	Status int
}

// NewTrusted wraps a provided error with an HTTP status code. This
// function should be used when handlers encounter expected errors.
func NewTrusted(err error, status int) error {
	return &Trusted{err, status}
}

// Error implements the error interface. It uses the default message of the
// wrapped error. This is what will be shown in the services' logs.
func (re *Trusted) Error() string {
	return re.Err.Error()
}

// Unwrap returns the wrapped error.
func (re *Trusted) Unwrap() error {
	return re.Err
}

// IsTrusted checks if an error of type RequestError exists.
func IsTrusted(err error) bool {
	var re *Trusted
	return errors.As(err, &re)
}

// GetTrusted returns a copy of the RequestError pointer.
func GetTrusted(err error) *Trusted {
	var re *Trusted
	if !errors.As(err, &re) {
		return nil
	}
	return re
}

// =============================================================================

// statusByKind maps the ledger error kinds to HTTP status codes.
var statusByKind = map[state.Kind]int{
	state.KindInvalidFormat:         http.StatusBadRequest,
	state.KindMissingField:          http.StatusBadRequest,
	state.KindInvalidAmount:         http.StatusBadRequest,
	state.KindSelfTransfer:          http.StatusBadRequest,
	state.KindInvalidWallet:         http.StatusBadRequest,
	state.KindInsufficientFunds:     http.StatusBadRequest,
	state.KindNoPendingTransactions: http.StatusBadRequest,
	state.KindForbidden:             http.StatusForbidden,
	state.KindNotFound:              http.StatusNotFound,
	state.KindDuplicateWallet:       http.StatusConflict,
	state.KindInvalidOperation:      http.StatusConflict,
	state.KindChainInconsistency:    http.StatusConflict,
	state.KindNotInitialized:        http.StatusServiceUnavailable,
}

// FromLedger turns an expected ledger error into a trusted error carrying
// the matching status. Crypto and storage failures, along with anything the
// ledger didn't produce, are returned untouched so they surface as an
// internal error.
func FromLedger(err error) error {
	status, exists := statusByKind[state.KindOf(err)]
	if !exists {
		return err
	}

	return NewTrusted(err, status)
}
