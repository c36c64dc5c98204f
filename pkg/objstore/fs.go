package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// FSStore serves objects from a filesystem rooted at a directory.
// Keys always use forward slashes.
type FSStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore wraps an afero filesystem. Tests pass afero.NewMemMapFs().
func NewFSStore(fsys afero.Fs, root string) *FSStore {
	return &FSStore{fs: fsys, root: strings.TrimSuffix(root, "/")}
}

// NewLocalStore is the OS backed store.
func NewLocalStore(root string) *FSStore {
	return NewFSStore(afero.NewOsFs(), root)
}

func (s *FSStore) Location() string {
	return "file://" + s.root
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	base := s.root
	if base == "" {
		base = "."
	}
	err := afero.Walk(s.fs, base, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		key := s.keyOf(p)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: walk %s: %w", s.root, err)
	}
	return out, nil
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, s.pathOf(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("objstore: read %s: %w", key, err)
	}
	return b, nil
}

func (s *FSStore) pathOf(key string) string {
	if s.root == "" {
		return key
	}
	return path.Join(s.root, key)
}

func (s *FSStore) keyOf(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if s.root == "" || s.root == "." {
		return strings.TrimPrefix(p, "./")
	}
	return strings.TrimPrefix(strings.TrimPrefix(p, s.root), "/")
}
