package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// Redis 分布式锁
// ============================================================================
//
// 加锁：SET key value NX PX timeout
// 释放：Lua 脚本比对 value 后删除，只释放自己持有的锁
//
// 锁只保护本地的短操作（签名校验后的入账），不允许跨越对支付网关的网络调用
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 锁持有者标识
	expiration time.Duration // 持有者崩溃时自动释放
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

// NewSettleLock 按网关支付号加锁，同一笔支付的重复回调串行入账
func NewSettleLock(client *redis.Client, paymentID string) *DistributedLock {
	key := fmt.Sprintf("hostel:settle:lock:%s", paymentID)
	return NewDistributedLock(client, key, uuid.NewString(), 15*time.Second)
}
