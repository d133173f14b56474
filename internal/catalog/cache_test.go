package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// An unreachable Redis degrades to DynamoDB reads and logs warnings.
func TestRedisCacheUnavailableFallsBackToStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	core, logs := observer.New(zap.WarnLevel)
	s, fake := newTestStore(NewRedisCache(rdb, time.Minute, zap.New(core)))
	seedProduct(t, s, "P1", 100, 4)

	p, err := s.Get(context.Background(), "P1")
	if err != nil || p == nil || p.Stock != 4 {
		t.Fatalf("expected product from store, got %+v %v", p, err)
	}
	if fake.Calls("GetItem") != 1 {
		t.Fatalf("expected one GetItem, got %d", fake.Calls("GetItem"))
	}
	if logs.FilterMessage("product cache read failed").Len() != 1 {
		t.Fatalf("expected cache read warning, got %+v", logs.All())
	}
}
