package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client)
}

func TestSetGetRoundTrip(t *testing.T) {
	c := newTestCache(t)
	if err := c.Set("k", []byte("value"), time.Minute); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	raw, err := c.Get("k")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if string(raw) != "value" {
		t.Fatalf("ожидали value, получили %q", raw)
	}
}

func TestGetMissingKeyIsNotError(t *testing.T) {
	c := newTestCache(t)
	raw, err := c.Get("absent")
	if err != nil {
		t.Fatalf("отсутствие ключа не должно быть ошибкой: %v", err)
	}
	if raw != nil {
		t.Fatalf("ожидали nil, получили %q", raw)
	}
}

func TestOnceRunsSingleTime(t *testing.T) {
	c := newTestCache(t)
	calls := 0
	fn := func() error { calls++; return nil }
	if err := c.Once("lock", time.Minute, fn); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := c.Once("lock", time.Minute, fn); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if calls != 1 {
		t.Fatalf("функция должна выполниться один раз, выполнилась %d", calls)
	}
}
