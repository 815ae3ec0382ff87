package demosource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
)

const (
	azblobBlobNotFound = "BlobNotFound"
)

// BlobReader is the part of azblob.Storer a BlobSource needs.
type BlobReader interface {
	Reader(
		ctx context.Context,
		identity string,
		opts ...azblob.Option,
	) (*azblob.ReaderResponse, error)

	List(ctx context.Context, opts ...azblob.Option) (*azblob.ListerResponse, error)
}

// BlobSource reads demos stored as blobs under a path prefix.
type BlobSource struct {
	log    logger.Logger
	store  BlobReader
	prefix string
	opts   Options
}

func NewBlobSource(log logger.Logger, store BlobReader, prefix string, opts ...Option) *BlobSource {
	return &BlobSource{log: log, store: store, prefix: prefix, opts: newOptions(opts)}
}

// NewDevBlobSource connects to the blob store emulator configured in the
// environment.
func NewDevBlobSource(log logger.Logger, container, prefix string, opts ...Option) (*BlobSource, error) {
	store, err := azblob.NewDev(azblob.NewDevConfigFromEnv(), container)
	if err != nil {
		return nil, err
	}
	return NewBlobSource(log, store, prefix, opts...), nil
}

func (s *BlobSource) Load(ctx context.Context, name string) ([]byte, error) {
	blobPath := joinKey(s.prefix, name)
	rr, err := s.store.Reader(ctx, blobPath)
	if err != nil {
		if isBlobNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, blobPath, err)
		}
		return nil, err
	}
	defer rr.Reader.Close()

	data, err := s.opts.readAll(blobPath, rr.Reader)
	if err != nil {
		return nil, err
	}
	etag := ""
	if rr.ETag != nil {
		etag = *rr.ETag
	}
	s.log.Debugf("read blob %s: %d bytes, etag %s", blobPath, len(data), etag)
	return data, nil
}

// List pages through the blobs under prefix and returns the names of those
// with the demo extension, relative to the source prefix.
func (s *BlobSource) List(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := joinKey(s.prefix, prefix)
	var names []string
	var marker azblob.ListMarker
	for {
		r, err := s.store.List(ctx, azblob.WithListPrefix(listPrefix), azblob.WithListMarker(marker))
		if err != nil {
			return nil, err
		}
		for _, it := range r.Items {
			if it.Name == nil || !isDemoName(*it.Name) {
				continue
			}
			name := *it.Name
			if s.prefix != "" {
				name = strings.TrimPrefix(strings.TrimPrefix(name, s.prefix), "/")
			}
			names = append(names, name)
		}
		if len(r.Items) == 0 || r.Marker == nil {
			break
		}
		marker = r.Marker
	}
	sort.Strings(names)
	return names, nil
}

func asStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	var ierr *azStorageBlob.InternalError
	if !errors.As(err, &ierr) || ierr == nil {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

func isBlobNotFound(err error) bool {
	if err == nil {
		return false
	}
	serr, ok := asStorageError(err)
	if !ok {
		return false
	}
	return serr.ErrorCode == azblobBlobNotFound
}
