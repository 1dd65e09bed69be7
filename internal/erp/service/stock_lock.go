package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StockLocker 按原料加锁，同一原料的库存写入串行化
type StockLocker interface {
	Lock(ctx context.Context, rawItemID string) (unlock func(), err error)
}

// LocalStockLocker 进程内按原料加锁（单实例或测试使用）
type LocalStockLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalStockLocker() *LocalStockLocker {
	return &LocalStockLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalStockLocker) Lock(ctx context.Context, rawItemID string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[rawItemID]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[rawItemID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(rawItemID, kl)
		return nil, &ConcurrencyError{RawItemID: rawItemID, Message: "等待库存锁超时"}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(rawItemID, kl)
		})
	}, nil
}

func (l *LocalStockLocker) release(rawItemID string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, rawItemID)
	}
	l.mu.Unlock()
}

const stockLockPrefix = "nimo-mes:stock-lock:"

// 仅删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStockLocker 多实例部署时的分布式锁，SET NX PX
type RedisStockLocker struct {
	rdb   *redis.Client
	ttl   time.Duration
	wait  time.Duration
	retry time.Duration
}

func NewRedisStockLocker(rdb *redis.Client, ttl, wait time.Duration) *RedisStockLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisStockLocker{rdb: rdb, ttl: ttl, wait: wait, retry: 25 * time.Millisecond}
}

func (l *RedisStockLocker) Lock(ctx context.Context, rawItemID string) (func(), error) {
	key := stockLockPrefix + rawItemID
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, &ConcurrencyError{RawItemID: rawItemID, Message: "等待库存锁超时"}
			}
			return nil, &PersistenceError{Op: "获取库存锁", Err: err}
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, &ConcurrencyError{RawItemID: rawItemID, Message: "等待库存锁超时"}
		}
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil, &ConcurrencyError{RawItemID: rawItemID, Message: "等待库存锁超时"}
		}
	}

	return func() {
		// 请求上下文可能已取消，释放锁使用独立上下文
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		unlockScript.Run(releaseCtx, l.rdb, []string{key}, token)
	}, nil
}
