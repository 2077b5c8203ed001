package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/pkg/logger"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	down   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.values[k]; ok {
			delete(f.values, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingReader struct {
	calls int
	rec   *models.SubscriptionRecord
	err   error
}

func (r *countingReader) Get(context.Context, int64) (*models.SubscriptionRecord, error) {
	r.calls++
	return r.rec, r.err
}

func TestGetReadsThrough(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := &countingReader{rec: &models.SubscriptionRecord{UserID: 9, Tier: models.TierPremiumAnnual, Status: models.StatusActive}}
	c := NewSubscriptionCache(rdb, next, time.Minute, logger.Discard())

	for i := 0; i < 3; i++ {
		rec, err := c.Get(ctx, 9)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if rec == nil || rec.Tier != models.TierPremiumAnnual {
			t.Fatalf("get %d: rec = %+v", i, rec)
		}
	}
	if next.calls != 1 {
		t.Fatalf("store reads = %d, want 1", next.calls)
	}

	c.Invalidate(ctx, 9)
	if _, err := c.Get(ctx, 9); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("store reads after invalidate = %d, want 2", next.calls)
	}
}

func TestGetCachesMissingRecord(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	next := &countingReader{}
	c := NewSubscriptionCache(rdb, next, time.Minute, logger.Discard())

	for i := 0; i < 2; i++ {
		rec, err := c.Get(ctx, 3)
		if err != nil || rec != nil {
			t.Fatalf("get %d = %+v, %v", i, rec, err)
		}
	}
	if next.calls != 1 {
		t.Fatalf("store reads = %d, want 1", next.calls)
	}
	if rdb.values["faithtrain:sub:3"] != noRecord {
		t.Fatalf("cached value = %q", rdb.values["faithtrain:sub:3"])
	}
}

func TestGetFallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	rdb.down = true
	next := &countingReader{rec: &models.SubscriptionRecord{UserID: 1, Tier: models.TierPremiumLifetime}}
	c := NewSubscriptionCache(rdb, next, 0, logger.Discard())

	rec, err := c.Get(ctx, 1)
	if err != nil || rec == nil || rec.Tier != models.TierPremiumLifetime {
		t.Fatalf("get = %+v, %v", rec, err)
	}
}

func TestGetPropagatesStoreError(t *testing.T) {
	boom := errors.New("store down")
	c := NewSubscriptionCache(newFakeRedis(), &countingReader{err: boom}, time.Minute, logger.Discard())
	if _, err := c.Get(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetDropsMalformedEntry(t *testing.T) {
	rdb := newFakeRedis()
	rdb.values["faithtrain:sub:5"] = "{not json"
	next := &countingReader{rec: &models.SubscriptionRecord{UserID: 5, Tier: models.TierPremiumMonthly}}
	c := NewSubscriptionCache(rdb, next, time.Minute, logger.Discard())
	rec, err := c.Get(context.Background(), 5)
	if err != nil || rec == nil || next.calls != 1 {
		t.Fatalf("get = %+v, %v (calls %d)", rec, err, next.calls)
	}
}
