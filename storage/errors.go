package storage

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode represents a storage error code.
type ErrorCode string

const (
	CodeNotFound       ErrorCode = "NotFound"
	CodeAccessDenied   ErrorCode = "AccessDenied"
	CodeBucketNotFound ErrorCode = "BucketNotFound"
	CodeInternalError  ErrorCode = "InternalError"
)

// StorageError wraps storage operation errors.
type StorageError struct {
	Code     ErrorCode
	Message  string
	Err      error
	Location Location
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage.%s: %s (%s): %v", e.Code, e.Message, e.Location, e.Err)
	}
	return fmt.Sprintf("storage.%s: %s (%s)", e.Code, e.Message, e.Location)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *StorageError in the chain.
func CodeOf(err error) (ErrorCode, bool) {
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Code, true
	}
	return "", false
}

// IsNotFound checks if error is a "not found" error for the object or its bucket.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && (code == CodeNotFound || code == CodeBucketNotFound)
}

// IsAccessDenied checks if error is an "access denied" error.
func IsAccessDenied(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == CodeAccessDenied
}
