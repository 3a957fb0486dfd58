package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
)

//go:generate mockgen -source=fs.go -destination=fsmock/fs.go -package=fsmock

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// KernelFS wraps the filesystem operations used by the kernel.
type KernelFS interface {
	MkdirAll(path string) error
	FileExists(path string) (bool, error)
	ReadFile(name string) ([]byte, error)
	// WriteFileAtomic writes data to a temporary file in the same directory and renames it over name,
	// so readers never observe a partially written file.
	WriteFileAtomic(name string, data []byte, perm os.FileMode) error
	Remove(name string) error
	TempFile(dir, pattern string) (*os.File, error)
}

type fsImpl struct{}

// New creates a new KernelFS.
func New() KernelFS {
	return fsImpl{}
}

// MkdirAll creates a directory and all its parents.
func (fsImpl) MkdirAll(path string) error { return os.MkdirAll(path, os.ModePerm) }

func (fsImpl) FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (fsImpl) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (fsImpl) WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Remove deletes the named file. A missing file is not an error.
func (fsImpl) Remove(name string) error {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempFile creates a new temporary file in dir, opened for writing.
func (fsImpl) TempFile(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}
