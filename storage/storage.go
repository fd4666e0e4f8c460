// Package storage reads merge inputs (recipient lists and templates) from
// S3-compatible object storage.
package storage

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Scheme marks an input path as an object in a bucket: s3://bucket/key.
const Scheme = "s3"

// Storage is the interface for reading stored objects.
type Storage interface {
	// Get opens an object for reading. The caller closes it.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	io.Closer
}

// Location addresses a single object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return Scheme + "://" + l.Bucket + "/" + l.Key
}

// IsURL reports whether path uses the s3:// scheme.
func IsURL(path string) bool {
	return strings.HasPrefix(path, Scheme+"://")
}

// ParseURL splits s3://bucket/key into its parts. The key is taken verbatim:
// '#', '?' and percent signs are part of the object name.
func ParseURL(raw string) (Location, error) {
	rest, ok := strings.CutPrefix(raw, Scheme+"://")
	if !ok {
		return Location{}, errors.Errorf("object url %q must use the %s:// scheme", raw, Scheme)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Location{}, errors.Errorf("object url %q needs both bucket and key", raw)
	}

	return Location{Bucket: bucket, Key: key}, nil
}
