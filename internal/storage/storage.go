// Package storage is the root-confined file layer. Every relative path
// crossing into it is validated by pathutil before any filesystem call;
// uploads land in a staging directory and only reach the served root
// through Promote.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/assetgatehq/assetgate/internal/pathutil"
)

var (
	ErrUnsafeName = errors.New("unsafe asset name")
	ErrNotFound   = errors.New("asset not found")
)

type Store struct {
	rootDir    string
	stagingDir string
}

func New(rootDir, stagingDir string) *Store {
	return &Store{rootDir: rootDir, stagingDir: stagingDir}
}

func (s *Store) RootDir() string {
	return s.rootDir
}

// Resolve validates rel against the root and returns the filesystem path.
func (s *Store) Resolve(rel string) (string, error) {
	return pathutil.SafeJoin(s.rootDir, rel)
}

// Open opens a served asset. Directories and anything failing containment
// come back as ErrNotFound so callers cannot distinguish probing from a
// genuine miss.
func (s *Store) Open(rel string) (*os.File, os.FileInfo, error) {
	path, err := s.Resolve(rel)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, rel)
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, rel)
		}
		return nil, nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %q", ErrNotFound, rel)
	}
	return f, fi, nil
}

// WriteStaged stores an uploaded asset under the staging directory. The
// name must pass the filename guard; staged files are invisible to Open
// until promoted.
func (s *Store) WriteStaged(name string, r io.Reader) (string, error) {
	if !pathutil.IsFilenameSafe(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	if err := os.MkdirAll(s.stagingDir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(s.stagingDir, name)
	if err := writeStreamAtomic(path, r, 0600); err != nil {
		return "", err
	}
	return path, nil
}

// Promote moves a staged asset into the served root.
func (s *Store) Promote(name string) error {
	if !pathutil.IsFilenameSafe(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	staged := filepath.Join(s.stagingDir, name)
	if _, err := os.Stat(staged); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return err
	}

	if err := os.MkdirAll(s.rootDir, 0755); err != nil {
		return err
	}
	return os.Rename(staged, filepath.Join(s.rootDir, name))
}

// SweepStaging removes staged files older than maxAge and returns how
// many were removed. Abandoned uploads and temp files from interrupted
// writes both age out this way.
func (s *Store) SweepStaging(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.stagingDir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

func writeStreamAtomic(path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	return nil
}
