package demosource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/demo"
)

type DirLister interface {
	// ListFiles returns the paths of the files (not subdirectories) in a
	// directory
	ListFiles(string) ([]string, error)
}

type Opener interface {
	Open(string) (io.ReadCloser, error)
}

type osDirLister struct{}

func (osDirLister) ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

type osOpener struct{}

func (osOpener) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

// FileSource reads demos below a root directory.
type FileSource struct {
	log    logger.Logger
	root   string
	opener Opener
	lister DirLister
	opts   Options
}

type FileSourceOption func(*FileSource)

func WithOpener(o Opener) FileSourceOption {
	return func(s *FileSource) { s.opener = o }
}

func WithDirLister(l DirLister) FileSourceOption {
	return func(s *FileSource) { s.lister = l }
}

func WithFileOptions(opts ...Option) FileSourceOption {
	return func(s *FileSource) { s.opts = newOptions(opts) }
}

func NewFileSource(log logger.Logger, root string, opts ...FileSourceOption) *FileSource {
	s := &FileSource{log: log, root: root, opener: osOpener{}, lister: osDirLister{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FileSource) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.root, name)
}

// Load reads the demo at name, relative to the root unless absolute.
func (s *FileSource) Load(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := s.opener.Open(s.path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	defer f.Close()
	return s.opts.readAll(name, f)
}

// List returns the demo files directly inside the directory prefix. Files
// with the demo extension but without the demo magic are skipped.
func (s *FileSource) List(ctx context.Context, prefix string) ([]string, error) {
	dir := s.path(prefix)
	files, err := s.lister.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, p := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isDemoName(p) {
			continue
		}
		ok, err := s.hasDemoHeader(p)
		if err != nil {
			return nil, err
		}
		if !ok {
			s.log.Debugf("skipping %s: no demo magic", p)
			continue
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			rel = p
		}
		names = append(names, rel)
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileSource) hasDemoHeader(p string) (bool, error) {
	f, err := s.opener.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	var header [8]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return demo.HasMagic(header[:]), nil
}
