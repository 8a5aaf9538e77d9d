package lock

import (
	"context"
	"errors"
	"fmt"
)

var ErrLockFailed = errors.New("获取用户锁失败")

// Locker 按用户维度串行化余额变更
//
// 同一用户的充值回调、消费、调账可能同时到达，
// 加锁后读到的 balance_before 一定是上一笔提交后的值，不会出现丢失更新。
// 不同用户使用不同的 key，互不阻塞。
type Locker interface {
	// Acquire 在 ctx 截止前拿到锁，返回的 release 必须调用
	// owner 仅用于排查，不参与锁的归属判断
	Acquire(ctx context.Context, key, owner string) (release func(), err error)
}

// UserKey 余额锁的 key
func UserKey(userID int64) string {
	return fmt.Sprintf("balance:lock:user:%d", userID)
}
