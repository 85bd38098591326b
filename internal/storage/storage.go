// Package storage keeps file-backed property values outside the graph. The
// graph only holds the public URL; the bytes live in a FileStore.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrStorage wraps every failure reported by a FileStore.
var ErrStorage = errors.New("storage error")

// FileStore is the remote side of file-backed properties.
type FileStore interface {
	Put(ctx context.Context, localPath, remotePath string) error
	Remove(ctx context.Context, remotePath string) error
	Exists(ctx context.Context, remotePath string) (bool, error)
	Mkdir(ctx context.Context, remotePath string) error
}

// Upload is a file waiting to be stored. Name is the client-side file name
// and only contributes its extension; Path is the local file to send.
type Upload struct {
	Name string
	Path string
}

// Layout maps object keys to remote paths, public URLs, and CDN purge paths.
// A key is a slash-separated path relative to Root, e.g. "content/img/ab12.png".
type Layout struct {
	Root    string
	PullURL string
}

var kinds = map[string]string{
	".jpg":  "img",
	".jpeg": "img",
	".png":  "img",
	".gif":  "img",
	".webp": "img",
	".svg":  "svg",
	".pdf":  "pdf",
}

// Key builds a fresh object key for upload.
func (l Layout) Key(upload Upload) string {
	ext := strings.ToLower(filepath.Ext(upload.Name))
	kind, ok := kinds[ext]
	if !ok {
		kind = "files"
	}
	return path.Join("content", kind, strings.ReplaceAll(uuid.NewString(), "-", "")+ext)
}

// RemotePath returns where key lives on the FileStore.
func (l Layout) RemotePath(key string) string {
	root := l.Root
	if root == "" {
		root = "/"
	}
	return path.Join(root, key)
}

// URL returns the public URL serving key.
func (l Layout) URL(key string) string {
	return strings.TrimRight(l.PullURL, "/") + "/" + strings.TrimLeft(key, "/")
}

// KeyFromURL recovers the object key from a URL produced by URL. The
// second result is false for empty values and foreign URLs.
func (l Layout) KeyFromURL(url string) (string, bool) {
	prefix := strings.TrimRight(l.PullURL, "/") + "/"
	if url == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// PurgePath returns the path the CDN caches key under.
func (l Layout) PurgePath(key string) string {
	return "/" + strings.TrimLeft(key, "/")
}

// Files stores uploads on a FileStore following a Layout.
type Files struct {
	store  FileStore
	layout Layout
	logger *zap.Logger
}

func NewFiles(store FileStore, layout Layout, logger *zap.Logger) *Files {
	return &Files{store: store, layout: layout, logger: logger}
}

// Layout returns the layout files are stored with.
func (f *Files) Layout() Layout {
	return f.layout
}

// Save stores upload and returns its public URL. When the first put fails,
// the missing folders are created and the put is retried once.
func (f *Files) Save(ctx context.Context, upload Upload) (string, error) {
	if upload.Path == "" {
		return "", fmt.Errorf("%w: upload has no local path", ErrStorage)
	}
	key := f.layout.Key(upload)
	remote := f.layout.RemotePath(key)

	if err := f.store.Put(ctx, upload.Path, remote); err != nil {
		f.logger.Debug("Put failed, creating folders", zap.String("remote_path", remote), zap.Error(err))
		if err := f.mkdirParents(ctx, path.Dir(remote)); err != nil {
			return "", err
		}
		if err := f.store.Put(ctx, upload.Path, remote); err != nil {
			return "", fmt.Errorf("%w: put %s: %w", ErrStorage, remote, err)
		}
	}

	url := f.layout.URL(key)
	f.logger.Debug("Stored file", zap.String("remote_path", remote), zap.String("url", url))
	return url, nil
}

func (f *Files) mkdirParents(ctx context.Context, dir string) error {
	var parts []string
	for d := dir; d != "/" && d != "." && d != ""; d = path.Dir(d) {
		parts = append(parts, d)
	}
	for i := len(parts) - 1; i >= 0; i-- {
		exists, err := f.store.Exists(ctx, parts[i])
		if err != nil {
			return fmt.Errorf("%w: stat %s: %w", ErrStorage, parts[i], err)
		}
		if exists {
			continue
		}
		if err := f.store.Mkdir(ctx, parts[i]); err != nil {
			return fmt.Errorf("%w: mkdir %s: %w", ErrStorage, parts[i], err)
		}
	}
	return nil
}

// Delete removes the file behind url if it is one of ours and still
// exists. It returns the CDN purge path of a removed file, or "" when
// nothing was removed.
func (f *Files) Delete(ctx context.Context, url string) (string, error) {
	key, ok := f.layout.KeyFromURL(url)
	if !ok {
		return "", nil
	}
	remote := f.layout.RemotePath(key)

	exists, err := f.store.Exists(ctx, remote)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %w", ErrStorage, remote, err)
	}
	if !exists {
		return "", nil
	}
	if err := f.store.Remove(ctx, remote); err != nil {
		return "", fmt.Errorf("%w: remove %s: %w", ErrStorage, remote, err)
	}
	return f.layout.PurgePath(key), nil
}
