package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/redis/go-redis/v9"
)

func newTestBloom(t *testing.T) (*BloomFilter, *redis.Client) {
	t.Helper()
	addr := os.Getenv("DISCOVERY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("DISCOVERY_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewBloomFilterWithClient(client, 1000, 0.01), client
}

func TestBloomFilter_AddAndCheck(t *testing.T) {
	bf, client := newTestBloom(t)
	ctx := context.Background()
	key := fmt.Sprintf("user:exposed:bloom:test-%d:20260101", time.Now().UnixNano())
	defer client.Del(ctx, key)

	ok, err := bf.CheckInBloomFilter(ctx, key, "p1")
	if err != nil || ok {
		t.Fatalf("missing filter: ok=%v err=%v", ok, err)
	}
	if err := bf.BatchAddToBloomFilter(ctx, key, []string{"p1", "p2"}, 60); err != nil {
		t.Fatalf("add: %v", err)
	}
	for _, id := range []string{"p1", "p2"} {
		if ok, err := bf.CheckInBloomFilter(ctx, key, id); err != nil || !ok {
			t.Errorf("%s: ok=%v err=%v", id, ok, err)
		}
	}
	if ttl := client.TTL(ctx, key).Val(); ttl <= 0 {
		t.Errorf("ttl = %v, want > 0", ttl)
	}
}

func TestBloomFilter_SharedAcrossInstances(t *testing.T) {
	a, client := newTestBloom(t)
	b := NewBloomFilterWithClient(client, 1000, 0.01)
	b.MaxAge = 0
	ctx := context.Background()
	key := fmt.Sprintf("user:exposed:bloom:shared-%d:20260101", time.Now().UnixNano())
	defer client.Del(ctx, key)

	if err := a.BatchAddToBloomFilter(ctx, key, []string{"p1"}, 0); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := b.BatchAddToBloomFilter(ctx, key, []string{"p2"}, 0); err != nil {
		t.Fatalf("add b: %v", err)
	}
	a.Forget(key)
	for _, id := range []string{"p1", "p2"} {
		if ok, _ := a.CheckInBloomFilter(ctx, key, id); !ok {
			t.Errorf("%s not visible after concurrent writes", id)
		}
	}
}

func TestBloomFilter_LocalCopyExpires(t *testing.T) {
	bf := NewBloomFilterWithClient(nil, 100, 0.01)
	now := time.Unix(0, 0)
	bf.now = func() time.Time { return now }

	bf.remember("k", nil)
	if _, ok := bf.cached("k"); ok {
		t.Fatal("nil filter must not be cached")
	}

	bf.remember("k", bloom.NewWithEstimates(100, 0.01))
	if _, ok := bf.cached("k"); !ok {
		t.Fatal("fresh copy should be served locally")
	}
	now = now.Add(bf.MaxAge + time.Second)
	if _, ok := bf.cached("k"); ok {
		t.Fatal("expired copy should be reloaded")
	}
}
