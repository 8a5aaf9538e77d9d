package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), UserKey(1), "")
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

			time.Sleep(time.Millisecond)

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
	if len(locker.slots) != 0 {
		t.Fatalf("slots leaked: %d", len(locker.slots))
	}
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	release1, err := locker.Acquire(context.Background(), UserKey(1), "")
	if err != nil {
		t.Fatalf("acquire user 1: %v", err)
	}
	defer release1()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	release2, err := locker.Acquire(ctx, UserKey(2), "")
	if err != nil {
		t.Fatalf("acquire user 2 should not block: %v", err)
	}
	release2()
}

func TestLocalLocker_RespectsContext(t *testing.T) {
	t.Parallel()

	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), UserKey(7), "")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, UserKey(7), "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// 释放两次不应 panic
	release()
	release()
}
