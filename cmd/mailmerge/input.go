package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"

	"github.com/pure-golang/mailmerge/storage"
	"github.com/pure-golang/mailmerge/storage/minio"
)

// inputs opens local files and s3://bucket/key objects. The object storage
// client is created on first use.
type inputs struct {
	cfg    minio.Config
	logger *slog.Logger
	store  storage.Storage
}

func (in *inputs) open(ctx context.Context, path string) (io.ReadCloser, error) {
	if !storage.IsURL(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open %s", path)
		}
		return f, nil
	}

	loc, err := storage.ParseURL(path)
	if err != nil {
		return nil, err
	}

	if in.store == nil {
		s, err := minio.New(in.cfg, in.logger)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot open %s", path)
		}
		in.store = s
	}

	rc, err := in.store.Get(ctx, loc.Bucket, loc.Key)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	return rc, nil
}

func (in *inputs) Close() error {
	if in.store == nil {
		return nil
	}
	return in.store.Close()
}
