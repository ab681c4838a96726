package forge

import (
	"fmt"
)

type ErrorCode string

const (
	BadRequest        ErrorCode = "bad-request"
	NotAvailable      ErrorCode = "not-available" // transient: node unreachable, timeout, 5xx
	NotFound          ErrorCode = "not-found"
	AlreadyExists     ErrorCode = "already-exists"
	DBConflict        ErrorCode = "db-conflict" // atomic update lost a race, safe to retry
	InsufficientFunds ErrorCode = "insufficient-funds"
	InvalidTxn        ErrorCode = "invalid-txn" // encoding invariant violated; never retried
	SignerDeclined    ErrorCode = "signer-declined"
	BroadcastRejected ErrorCode = "broadcast-rejected" // node rejected the signed tx outright
	UnknownError      ErrorCode = "unknown-error"
)

type ErrorInfo struct {
	Code    ErrorCode // machine-readable ErrorCode enumeration
	Message string    // human-readable debug message (in production, logged on the server only)
}

func (e *ErrorInfo) Error() string {
	return string(e.Message)
}

func NewErr(code ErrorCode, format string, args ...any) error {
	return &ErrorInfo{Code: code, Message: fmt.Sprintf(format, args...)}
}

func IsNotFoundError(err error) bool {
	return IsError(err, NotFound)
}

func IsAlreadyExistsError(err error) bool {
	return IsError(err, AlreadyExists)
}

func IsDBConflictError(err error) bool {
	return IsError(err, DBConflict)
}

func IsInsufficientFundsError(err error) bool {
	return IsError(err, InsufficientFunds)
}

func IsInvalidTxnError(err error) bool {
	return IsError(err, InvalidTxn)
}

func IsNotAvailableError(err error) bool {
	return IsError(err, NotAvailable)
}

func IsBroadcastRejectedError(err error) bool {
	return IsError(err, BroadcastRejected)
}

func IsError(err error, ofType ErrorCode) bool {
	if e, ok := err.(*ErrorInfo); ok {
		return e.Code == ofType
	}
	return false
}

// CodeOf extracts the ErrorCode, mapping non-ErrorInfo errors to
// UnknownError.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*ErrorInfo); ok {
		return e.Code
	}
	return UnknownError
}
