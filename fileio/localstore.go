package fileio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"media_ingest/constants"
)

// ErrInvalidName is returned for names that are not a single path element
var ErrInvalidName = errors.New("invalid storage name")

// LocalStore keeps uploads as files in one directory
type LocalStore struct {
	dir        string
	bufferSize int
}

// NewLocalStore creates dir if it is missing
func NewLocalStore(dir string, bufferSize int) (*LocalStore, error) {
	if bufferSize <= 0 {
		bufferSize = constants.DEFAULT_FILE_BUFFER_SIZE
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalStore{dir: dir, bufferSize: bufferSize}, nil
}

func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name ||
		strings.ContainsAny(name, `/\`) || IsPartFile(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	p, err := s.path(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Put writes data to a hidden part file and links it into place once complete,
// so readers of the directory never observe a partially written upload.
// An existing entry under name is left untouched and ErrExists is returned.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte) (uint32, error) {
	final, err := s.path(name)
	if err != nil {
		return 0, err
	}
	tmp := filepath.Join(s.dir, "."+name+constants.PART_SUFFIX)

	w, err := NewBufferedWriter(tmp, s.bufferSize)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", tmp, err)
	}
	for off := 0; off < len(data); off += s.bufferSize {
		if err := ctx.Err(); err != nil {
			w.Abort()
			return 0, err
		}
		end := min(off+s.bufferSize, len(data))
		if _, err := w.Write(data[off:end]); err != nil {
			w.Abort()
			return 0, fmt.Errorf("write %s: %w", tmp, err)
		}
	}
	sum, err := w.Close()
	defer os.Remove(tmp)
	if err != nil {
		return 0, fmt.Errorf("close %s: %w", tmp, err)
	}
	// Link fails on an existing target where rename would replace it.
	if err := os.Link(tmp, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return 0, fmt.Errorf("link %s: %w", final, err)
	}
	return sum, nil
}

// List returns stored names in directory order, skipping subdirectories and part files
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || IsPartFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// IsPartFile reports whether name is an in-progress write
func IsPartFile(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, constants.PART_SUFFIX)
}
