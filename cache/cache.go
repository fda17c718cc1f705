package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNil 表示 key 不存在
var ErrNil = errors.New("cache: key not found")

// Store 共享缓存抽象。所有跨进程共享的易失状态（在线状态、连接集合、
// 输入中标记、未读计数、限流计数、通话竞争锁）都走这里，进程本地不允许
// 保存这类状态，服务是水平扩展的。
type Store interface {
	// Get 读取 key，不存在时返回 ErrNil
	Get(ctx context.Context, key string) (string, error)
	// Set 写入 key，ttl 为 0 表示不过期
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// ScanPrefix 按前缀扫描 key
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// 集合操作（连接集合）
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// 列表操作（离线消息队列）
	RPush(ctx context.Context, key, value string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// 发布订阅，用于跨进程事件广播
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)

	Ping(ctx context.Context) error
	Close() error
}
