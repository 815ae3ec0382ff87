// Package demosource finds and loads demo files from a local directory, an
// Azure blob container or an S3 bucket. The Load method of every source has
// the signature of demo.Loader.
package demosource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/demo"
)

var (
	ErrNotFound = errors.New("demosource: demo not found")
	ErrNotDemo  = errors.New("demosource: not a demo file")
	ErrTooLarge = errors.New("demosource: demo exceeds the size limit")
)

// DemoExt is the extension List looks for.
const DemoExt = ".dem"

type Source interface {
	Load(ctx context.Context, name string) ([]byte, error)
	// List returns the names of the demos under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

type Options struct {
	maxSize int64
	// skip the magic check on load
	anyContent bool
}

type Option func(*Options)

// WithMaxSize makes Load fail with ErrTooLarge for demos larger than n
// bytes. Zero means no limit.
func WithMaxSize(n int64) Option {
	return func(o *Options) { o.maxSize = n }
}

// WithAnyContent loads files that do not start with the demo magic.
func WithAnyContent() Option {
	return func(o *Options) { o.anyContent = true }
}

func newOptions(opts []Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// readAll reads r to the end, enforcing the size limit and the magic check.
func (o Options) readAll(name string, r io.Reader) ([]byte, error) {
	if o.maxSize > 0 {
		r = io.LimitReader(r, o.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if o.maxSize > 0 && int64(len(data)) > o.maxSize {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, name, o.maxSize)
	}
	if !o.anyContent && !demo.HasMagic(data) {
		return nil, fmt.Errorf("%w: %s", ErrNotDemo, name)
	}
	return data, nil
}

// joinKey joins an object store prefix and name with a single slash.
func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func isDemoName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), DemoExt)
}

// Config carries the connection settings Open needs for remote sources.
type Config struct {
	S3Region   string
	S3Endpoint string
}

// Open returns the source a location names: "s3://bucket/prefix",
// "azblob://container/prefix" for the configured blob store emulator, or a
// local directory.
func Open(ctx context.Context, log logger.Logger, location string, cfg Config, opts ...Option) (Source, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		dir := location
		if err == nil && u.Scheme == "file" {
			dir = u.Path
		}
		return NewFileSource(log, dir, WithFileOptions(opts...)), nil
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	switch u.Scheme {
	case "s3":
		client, err := NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
		if err != nil {
			return nil, err
		}
		return NewS3Source(log, client, u.Host, prefix, opts...), nil
	case "azblob":
		return NewDevBlobSource(log, u.Host, prefix, opts...)
	}
	return nil, fmt.Errorf("demosource: unsupported location scheme %q", u.Scheme)
}
