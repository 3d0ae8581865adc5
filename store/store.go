package store

import (
	"fmt"

	"github.com/rushteam/cardiokit/core"
)

// 注意：此包只包含实现，接口定义在 core 包。
//
// 示例：
//   var s core.Store = NewFileStore("./artifacts")

// Backend 存储后端类型
type Backend string

const (
	BackendFile   Backend = "file"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Options 创建存储所需的参数，由配置层填充
type Options struct {
	Backend   Backend
	Dir       string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// Open 根据后端类型创建 core.Store
func Open(opts Options) (core.Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.Dir)
	case BackendRedis:
		return NewRedisStore(opts.RedisAddr, opts.RedisDB, WithKeyPrefix(opts.KeyPrefix))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", opts.Backend)
	}
}
