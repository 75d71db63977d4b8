package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock 定义分布式锁接口
type DistributedLock interface {
	// Acquire 尝试获取锁
	// key: 锁的唯一标识 (这里是 Safe 地址)
	// token: 持有者标识，释放时校验归属
	// ttl: 锁的过期时间
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// Release 释放锁，token 不匹配则不动
	Release(ctx context.Context, key, token string) error
}

// 用 Lua 保证"检查归属 + 删除"的原子性
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// RedisLock 基于 Redis SETNX 的实现。
// 用于在规划到授权的窗口内锁住 Safe 账户，
// 避免多个进程同时基于同一个 nonce 快照构建计划。
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	// SET key token NX EX ttl
	success, err := l.client.SetNX(ctx, "lock:"+key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

func (l *RedisLock) Release(ctx context.Context, key, token string) error {
	return releaseScript.Run(ctx, l.client, []string{"lock:" + key}, token).Err()
}
