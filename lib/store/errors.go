package store

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Command executed successfully.
	RetCInternalError                // 1: Command failed due to an internal error.
	RetCValidation                   // 2: The request was rejected before touching storage.
	RetCBatchTooLarge                // 3: The batch exceeds MaxBatchSize.
	RetCNotFound                     // 4: The key does not exist.
	RetCQuorumFailed                 // 5: Replication did not reach the write quorum.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCValidation:
		return "Validation"
	case RetCBatchTooLarge:
		return "BatchTooLarge"
	case RetCNotFound:
		return "NotFound"
	case RetCQuorumFailed:
		return "QuorumFailed"
	default:
		return "Unknown"
	}
}

// ParseRetCode is the inverse of RetCode.String. Unknown names map to RetCInternalError.
func ParseRetCode(s string) RetCode {
	for c := RetCSuccess; c <= RetCQuorumFailed; c++ {
		if c.String() == s {
			return c
		}
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Custom Error Types
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code RetCode, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// QuorumError is returned by write operations whose replication did not reach
// the write quorum. Reached counts the local node plus all peers that
// acknowledged the write.
type QuorumError struct {
	Reached  int
	Required int
	Total    int
	Failed   []string
}

// Error implements the error interface.
func (e *QuorumError) Error() string {
	return fmt.Sprintf("replication failed, %d/%d nodes reachable (need %d)", e.Reached, e.Total, e.Required)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// CodeOf returns the RetCode of err. Errors that are neither *Error nor
// *QuorumError are reported as RetCInternalError.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	var quorumErr *QuorumError
	if errors.As(err, &quorumErr) {
		return RetCQuorumFailed
	}
	return RetCInternalError
}

// IsNotFound reports whether err signals a missing key.
func IsNotFound(err error) bool {
	return CodeOf(err) == RetCNotFound
}

// IsValidation reports whether err was caused by invalid input.
func IsValidation(err error) bool {
	code := CodeOf(err)
	return code == RetCValidation || code == RetCBatchTooLarge
}

// IsQuorumFailure reports whether err is a *QuorumError.
func IsQuorumFailure(err error) bool {
	return CodeOf(err) == RetCQuorumFailed
}
