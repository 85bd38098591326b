package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalStore is a FileStore backed by a directory. Remote paths are
// interpreted relative to Dir.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{Dir: dir}
}

func (s *LocalStore) path(remotePath string) string {
	return filepath.Join(s.Dir, filepath.FromSlash(remotePath))
}

// Put copies localPath to remotePath. The parent folder must exist.
func (s *LocalStore) Put(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(s.path(remotePath))
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *LocalStore) Remove(ctx context.Context, remotePath string) error {
	return os.Remove(s.path(remotePath))
}

func (s *LocalStore) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := os.Stat(s.path(remotePath))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *LocalStore) Mkdir(ctx context.Context, remotePath string) error {
	return os.Mkdir(s.path(remotePath), 0o755)
}
