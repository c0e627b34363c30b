package launcher

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a failed launch.
type ErrorCode string

const (
	CodeConfiguration   ErrorCode = "CONFIGURATION"
	CodeIO              ErrorCode = "IO"
	CodeNetwork         ErrorCode = "NETWORK"
	CodeArchive         ErrorCode = "ARCHIVE"
	CodeProcessCreation ErrorCode = "PROCESS_CREATION"
	CodeRuntimeMissing  ErrorCode = "RUNTIME_MISSING"
	CodeAlreadyRunning  ErrorCode = "ALREADY_RUNNING"
)

// ErrAlreadyRunning is the cause of every CodeAlreadyRunning error.
var ErrAlreadyRunning = errors.New("launcher: game is already running")

// Error is a terminal launch failure.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return ""
}

func newError(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}
