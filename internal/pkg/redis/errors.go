package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNil 键不存在，或 RPop 时列表为空
	ErrNil            = redis.Nil
	ErrNotInitialized = errors.New("redis: client not initialized")
)

// IsNil 判断是否为空结果；清理队列据此判断已经取完
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsClosed 客户端已关闭，通常发生在停机过程中
func IsClosed(err error) bool {
	return errors.Is(err, redis.ErrClosed)
}
