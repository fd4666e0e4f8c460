package minio

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/mailmerge/storage"
)

var _ storage.Storage = (*Storage)(nil)

var tracer = otel.Tracer("github.com/pure-golang/mailmerge/storage/minio")

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("storage is closed")

// Storage implements storage.Storage for S3-compatible storage.
type Storage struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a Storage. No request is made until the first Get.
func New(cfg Config, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled() {
		return nil, errors.New("s3 endpoint is not configured")
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region: cfg.Region,
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	return &Storage{
		client: client,
		cfg:    cfg,
		logger: logger.WithGroup("s3"),
	}, nil
}

// Get opens the object and checks that it exists.
func (s *Storage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctx, span := tracer.Start(ctx, "S3.Get", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	loc := storage.Location{Bucket: bucket, Key: key}
	span.SetAttributes(
		attribute.String("bucket", bucket),
		attribute.String("key", key),
	)

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}

	// reads reuse ctx, so the timeout covers the whole download and ends on Close
	cancel := context.CancelFunc(func() {})
	if s.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
	}

	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, toStorageError(err, loc)
	}

	// GetObject is lazy; Stat surfaces a missing bucket or key before reading
	info, err := obj.Stat()
	if err != nil {
		if closeErr := obj.Close(); closeErr != nil {
			s.logger.With("error", closeErr).Error("failed to close object after stat error")
		}
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, toStorageError(err, loc)
	}

	span.SetAttributes(attribute.Int64("size", info.Size))
	s.logger.Debug("object opened", "location", loc.String(), "size", info.Size)

	return &object{Object: obj, cancel: cancel}, nil
}

type object struct {
	*minio.Object
	cancel context.CancelFunc
}

func (o *object) Close() error {
	defer o.cancel()
	return o.Object.Close()
}

// Close marks the storage closed. The underlying HTTP client holds no open
// connections that need releasing.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
