package bundle

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Source is where the Bundler reads files from. Names are slash separated
// and relative to the source root.
type Source interface {
	// Exists reports whether name is an existing regular file. A missing
	// file is (false, nil); an error means the answer is unknown.
	Exists(ctx context.Context, name string) (bool, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// Dir is a Source backed by the local filesystem, rooted at a directory.
// The root plays the role of the current working directory of the run: it is
// the first search base for every include.
type Dir string

func (d Dir) path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(string(d), filepath.FromSlash(name))
}

func (d Dir) Exists(_ context.Context, name string) (bool, error) {
	fi, err := os.Stat(d.path(name))
	if err != nil {
		// ENOTDIR: a path component is a regular file, e.g. "a.h/b.h".
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

func (d Dir) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(d.path(name))
}
