package minio

import (
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/pure-golang/mailmerge/storage"
)

// toStorageError converts minio errors to storage errors.
func toStorageError(err error, loc storage.Location) error {
	if err == nil {
		return nil
	}

	code, message := classify(err)
	return &storage.StorageError{
		Code:     code,
		Message:  message,
		Err:      err,
		Location: loc,
	}
}

func classify(err error) (storage.ErrorCode, string) {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return storage.CodeBucketNotFound, "bucket not found"
	case "NoSuchKey":
		return storage.CodeNotFound, "object not found"
	case "AccessDenied":
		return storage.CodeAccessDenied, "access denied"
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return storage.CodeNotFound, "object not found"
	case http.StatusForbidden:
		return storage.CodeAccessDenied, "access denied"
	}

	// Order matters: check for more specific patterns first
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "bucket") && (strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "does not exist")):
		return storage.CodeBucketNotFound, "bucket not found"
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "does not exist"):
		return storage.CodeNotFound, "object not found"
	case strings.Contains(errMsg, "Forbidden"):
		return storage.CodeAccessDenied, "access denied"
	}

	return storage.CodeInternalError, "internal storage error"
}
