package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript 仅持有者可释放锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var newLockToken = uuid.NewString

// Lock 分布式任务锁
type Lock struct {
	key   string
	token string
}

// AcquireLock 通过 SETNX 获取任务锁，Redis 未启用时视为单实例直接放行
func AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, bool, error) {
	lock := &Lock{key: BuildKey("lock:" + name), token: newLockToken()}
	client := Client()
	if client == nil {
		return lock, true, nil
	}
	ok, err := client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// Release 释放任务锁
func (l *Lock) Release(ctx context.Context) error {
	client := Client()
	if l == nil || client == nil {
		return nil
	}
	return releaseLockScript.Run(ctx, client, []string{l.key}, l.token).Err()
}
