package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockExcludesSecondHolder(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	first := newRedisLock(client, time.Minute)
	second := newRedisLock(client, time.Minute)

	ok, err := first.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first lock, got %v %v", ok, err)
	}
	ok, err = second.TryLock(ctx)
	if err != nil || ok {
		t.Fatalf("expected second lock to be refused, got %v %v", ok, err)
	}

	if err := second.Unlock(ctx); err != nil {
		t.Fatalf("unlock by non-owner: %v", err)
	}
	if ok, _ := second.TryLock(ctx); ok {
		t.Fatalf("non-owner unlock must not release the lock")
	}

	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if ok, err := second.TryLock(ctx); err != nil || !ok {
		t.Fatalf("expected lock after release, got %v %v", ok, err)
	}
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	lock := newRedisLock(client, 30*time.Second)

	if ok, err := lock.TryLock(ctx); err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	mr.FastForward(31 * time.Second)

	other := newRedisLock(client, 30*time.Second)
	if ok, err := other.TryLock(ctx); err != nil || !ok {
		t.Fatalf("expected expired lock to be free, got %v %v", ok, err)
	}
}

func TestRedisLockReportsConnectionErrors(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	if _, err := newRedisLock(client, time.Minute).TryLock(context.Background()); err == nil {
		t.Fatalf("expected an error from a closed server")
	}
}

func TestRedisLockRenewalOutlivesTTL(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	holder := newRedisLock(client, 30*time.Minute)
	other := newRedisLock(client, 30*time.Minute)

	if ok, err := holder.TryLock(ctx); err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	for i := 0; i < 3; i++ {
		mr.FastForward(20 * time.Minute)
		if ok, err := holder.renew(ctx); err != nil || !ok {
			t.Fatalf("renewal %d: %v %v", i, ok, err)
		}
	}
	if ok, err := other.TryLock(ctx); err != nil || ok {
		t.Fatalf("expected renewed lock to stay held after 60m, got %v %v", ok, err)
	}

	if ok, err := other.renew(ctx); err != nil || ok {
		t.Fatalf("non-owner must not renew, got %v %v", ok, err)
	}
}

func TestRedisLockKeepReportsLoss(t *testing.T) {
	mr, client := newTestRedis(t)
	lock := newRedisLock(client, time.Minute)
	lock.every = 5 * time.Millisecond

	if ok, err := lock.TryLock(context.Background()); err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}
	mr.FastForward(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lock.Keep(ctx); !errors.Is(err, errLockLost) {
		t.Fatalf("expected errLockLost, got %v", err)
	}
}

func TestRedisLockKeepStopsWithContext(t *testing.T) {
	_, client := newTestRedis(t)
	lock := newRedisLock(client, time.Minute)
	lock.every = 5 * time.Millisecond
	if ok, err := lock.TryLock(context.Background()); err != nil || !ok {
		t.Fatalf("expected lock, got %v %v", ok, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := lock.Keep(ctx); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}
