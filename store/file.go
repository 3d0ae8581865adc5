package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rushteam/cardiokit/core"
)

// FileStore 把一个本地目录当作只读产物存储，key 即目录下的相对文件名。
// 训练脚本导出的产物目录可以直接挂载使用。
type FileStore struct {
	root fs.FS
	dir  string
}

func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact dir %q is not a directory", dir)
	}
	return &FileStore{root: os.DirFS(dir), dir: dir}, nil
}

// NewFSStore 基于任意 fs.FS 创建存储（embed.FS / fstest.MapFS）
func NewFSStore(fsys fs.FS) *FileStore {
	return &FileStore{root: fsys}
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	name := filepath.ToSlash(strings.TrimPrefix(key, "/"))
	if !fs.ValidPath(name) {
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: invalid key "+key)
	}
	data, err := fs.ReadFile(f.root, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.ErrStoreNotFound
	}
	return data, err
}

// Set 只在基于目录创建时可用
func (f *FileStore) Set(ctx context.Context, key string, value []byte) error {
	if f.dir == "" {
		return fmt.Errorf("file store is read-only")
	}
	name := filepath.ToSlash(strings.TrimPrefix(key, "/"))
	if !fs.ValidPath(name) {
		return core.NewDomainError(core.ModuleStore, core.ErrorCodeInvalidInput, "store: invalid key "+key)
	}
	path := filepath.Join(f.dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, value, 0o644)
}

func (f *FileStore) BatchGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := f.Get(ctx, k)
		if core.IsStoreNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, nil
}

func (f *FileStore) Close() error { return nil }

var _ core.Store = (*FileStore)(nil)
