// Package blob stores finished archives until their download expires.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a location no longer holds an archive.
var ErrNotFound = errors.New("archive not found")

// Store keeps archives addressed by an opaque location string.
type Store interface {
	// Put takes ownership of the file at localPath and returns its location.
	Put(ctx context.Context, localPath, name string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	// Remove deletes the archive. A missing archive is not an error.
	Remove(ctx context.Context, location string) error
}

// Local keeps archives in a directory on the local filesystem.
type Local struct {
	dir string
}

// NewLocal creates the archive directory if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve archive dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Local{dir: abs}, nil
}

func (l *Local) Put(_ context.Context, localPath, name string) (string, error) {
	dst := filepath.Join(l.dir, filepath.Base(name))
	if err := os.Rename(localPath, dst); err == nil {
		return dst, nil
	}
	// Rename fails across filesystems; fall back to copying.
	if err := copyFile(localPath, dst); err != nil {
		return "", err
	}
	_ = os.Remove(localPath)
	return dst, nil
}

func (l *Local) Open(_ context.Context, location string) (io.ReadCloser, error) {
	if !l.owns(location) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	f, err := os.Open(location)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

func (l *Local) Remove(_ context.Context, location string) error {
	if !l.owns(location) {
		return nil
	}
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	return nil
}

// owns reports whether location is a file directly inside the archive dir.
func (l *Local) owns(location string) bool {
	return filepath.Dir(filepath.Clean(location)) == l.dir
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy archive: %w", err)
	}
	return out.Close()
}
