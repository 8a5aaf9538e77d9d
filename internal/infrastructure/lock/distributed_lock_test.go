package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"balanceledger/pkg/apperr"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisLocker(client, ttl, 5*time.Millisecond), mr
}

func TestRedisLocker_SerializesSameKey(t *testing.T) {
	locker, _ := newRedisLocker(t, 10*time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			release, err := locker.Acquire(ctx, UserKey(1), "")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestRedisLocker_DeadlineIsTimeout(t *testing.T) {
	locker, _ := newRedisLocker(t, 10*time.Second)

	release, err := locker.Acquire(context.Background(), UserKey(2), "first")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, UserKey(2), "second")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if !errors.Is(apperr.FromContext(err), apperr.ErrTimeout) || !apperr.Retryable(err) {
		t.Fatalf("deadline should map to retryable Timeout, got %v", err)
	}
}

func TestRedisLocker_ReleaseAfterExpiryKeepsNewHolder(t *testing.T) {
	tests := []struct {
		name  string
		owner string
	}{
		{name: "empty_owner", owner: ""},
		{name: "same_idempotency_key", owner: "order-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locker, mr := newRedisLocker(t, time.Second)
			key := UserKey(3)

			releaseA, err := locker.Acquire(context.Background(), key, tt.owner)
			if err != nil {
				t.Fatalf("acquire A: %v", err)
			}

			// A 的锁过期，B 拿到锁
			mr.FastForward(2 * time.Second)
			releaseB, err := locker.Acquire(context.Background(), key, tt.owner)
			if err != nil {
				t.Fatalf("acquire B: %v", err)
			}
			valueB, err := mr.Get(key)
			if err != nil {
				t.Fatalf("get B: %v", err)
			}
			if tt.owner != "" && !strings.HasPrefix(valueB, tt.owner+":") {
				t.Fatalf("lock value %q missing owner prefix", valueB)
			}

			releaseA()
			if !mr.Exists(key) {
				t.Fatalf("releasing an expired lock deleted the new holder's lock")
			}
			if got, _ := mr.Get(key); got != valueB {
				t.Fatalf("lock value = %q, want %q", got, valueB)
			}

			releaseB()
			releaseB()
			if mr.Exists(key) {
				t.Fatalf("lock still held after release")
			}
		})
	}
}
