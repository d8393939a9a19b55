// Package errors defines the coded error type shared by all dblite commands.
// Every failure surfaced to the user carries a code identifying the step
// that failed: configuration, snapshot transfer, object storage or database.
package errors

import (
	"fmt"
)

// ErrorCode identifies a failure category.
type ErrorCode int

const (
	// General errors (1000-1999)
	ErrSuccess       ErrorCode = 0    // success
	ErrInternal      ErrorCode = 1000 // internal error
	ErrInvalidParams ErrorCode = 1001 // invalid parameters
	ErrConfigMissing ErrorCode = 1002 // required configuration value absent
	ErrConfigInvalid ErrorCode = 1003 // configuration value malformed

	// Snapshot errors (2000-2999)
	ErrSnapshotDownloadFailed   ErrorCode = 2000 // download from object storage failed
	ErrSnapshotDecompressFailed ErrorCode = 2001 // xz stream corrupt or truncated
	ErrSnapshotWriteFailed      ErrorCode = 2002 // local write or rename failed
	ErrSnapshotCompressFailed   ErrorCode = 2003 // xz compression failed
	ErrSnapshotUploadFailed     ErrorCode = 2004 // upload to object storage failed
	ErrSnapshotNotPresent       ErrorCode = 2005 // local snapshot missing

	// Object storage errors (3000-3999)
	ErrStorageConnectionFailed    ErrorCode = 3000 // provider unreachable or auth failed
	ErrStorageObjectNotFound      ErrorCode = 3001 // remote object does not exist
	ErrStorageProviderUnsupported ErrorCode = 3002 // unknown provider name

	// Database errors (4000-4999)
	ErrDatabaseConnection ErrorCode = 4000 // cannot open snapshot database
	ErrDatabaseQuery      ErrorCode = 4001 // query against snapshot failed
	ErrDatabaseInsert     ErrorCode = 4002 // insert during construction failed
	ErrDatabaseAssemble   ErrorCode = 4003 // table assembly failed
)

// AppError is the unified error format for the application.
type AppError struct {
	// Failure category code
	Code ErrorCode `json:"code"`
	// Human readable message
	Message string `json:"message"`
	// Optional detail, usually the text of the original error
	Details string `json:"details,omitempty"`
	// Wrapped original error
	OriginalError error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap exposes the original error to errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.OriginalError
}

// WithDetails attaches detail text to the error.
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// New creates an application error with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an original error into an application error.
func Wrap(code ErrorCode, message string, err error) *AppError {
	appErr := &AppError{
		Code:          code,
		Message:       message,
		OriginalError: err,
	}
	if err != nil {
		appErr.Details = err.Error()
	}
	return appErr
}

// Wrapf wraps an original error with a formatted message.
func Wrapf(code ErrorCode, err error, format string, args ...any) *AppError {
	return Wrap(code, fmt.Sprintf(format, args...), err)
}

// IsAppError reports whether err is an *AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts an *AppError from err if possible.
func GetAppError(err error) (*AppError, bool) {
	appErr, ok := err.(*AppError)
	return appErr, ok
}

// CodeOf returns the error code carried by err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	if appErr, ok := GetAppError(err); ok {
		return appErr.Code
	}
	return ErrInternal
}
