package devotp

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "handle-1", "123456", time.Now().UTC().Add(5*time.Minute))

	otp, ok := store.Get(ctx, "handle-1")
	if !ok {
		t.Fatal("Get should return OTP after Put")
	}
	if otp != "123456" {
		t.Errorf("otp = %q, want %q", otp, "123456")
	}
}

func TestMemoryStore_Get_ReturnsFalseWhenMissing(t *testing.T) {
	store := NewMemoryStore()

	otp, ok := store.Get(context.Background(), "nonexistent")
	if ok {
		t.Error("Get should return false when OTP is missing")
	}
	if otp != "" {
		t.Errorf("otp = %q, want empty string", otp)
	}
}

func TestMemoryStore_Get_ExpiredIsRemoved(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.nowF = func() time.Time { return now }

	store.Put(ctx, "handle-1", "123456", now.Add(time.Minute))
	if _, ok := store.Get(ctx, "handle-1"); !ok {
		t.Fatal("entry should be live before expiry")
	}

	now = now.Add(time.Minute)
	if _, ok := store.Get(ctx, "handle-1"); ok {
		t.Error("Get should return false at expiry")
	}
	store.mu.RLock()
	_, present := store.m["handle-1"]
	store.mu.RUnlock()
	if present {
		t.Error("expired entry should be cleaned up")
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "handle-1", "123456", time.Now().UTC().Add(time.Minute))

	store.Delete(ctx, "handle-1")
	store.Delete(ctx, "handle-1")

	if _, ok := store.Get(ctx, "handle-1"); ok {
		t.Error("Get should return false after Delete")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := string(rune('a' + i%26))
			store.Put(ctx, h, "000000", exp)
			store.Get(ctx, h)
		}(i)
	}
	wg.Wait()
}
