package memory

import (
	"context"
	"testing"

	"github.com/FanQ1/Multi-Model-Routing-System/internal/config"
)

func TestNewRedisWindowCacheDisabledWhenAddrEmpty(t *testing.T) {
	cache, err := NewRedisWindowCache(config.RedisConfig{}, 0)
	if err != nil {
		t.Fatalf("NewRedisWindowCache: %v", err)
	}
	if cache != nil {
		t.Fatal("expected a nil cache when Addr is empty")
	}
}

func TestNilRedisWindowCacheMethodsAreNoOps(t *testing.T) {
	var cache *RedisWindowCache
	ctx := context.Background()

	if _, _, ok := cache.Load(ctx, "conv-1"); ok {
		t.Fatal("expected Load on a nil cache to report not-found")
	}
	cache.Save(ctx, "conv-1", nil, "summary")
	cache.Delete(ctx, "conv-1")
	if err := cache.Close(); err != nil {
		t.Fatalf("Close on nil cache: %v", err)
	}
}

func TestManagerWithNilCacheDoesNotPanic(t *testing.T) {
	store := newFakeMessageStore()
	m := New(store, nil, nil, &scriptedProvider{}, 10, 5, "utility-model").WithCache(nil)
	convID, err := m.NewConversation(context.Background())
	if err != nil {
		t.Fatalf("NewConversation: %v", err)
	}
	if err := m.Store(context.Background(), convID, "hi", "hello"); err != nil {
		t.Fatalf("Store: %v", err)
	}
}
