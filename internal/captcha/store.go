package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type memWidget struct {
	w         Widget
	expiresAt time.Time
}

// MemoryStore keeps widgets and spent ids in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	widgets map[string]memWidget
	spent   map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		widgets: make(map[string]memWidget),
		spent:   make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryStore) PutWidget(_ context.Context, w Widget, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.pruneLocked(now)
	s.widgets[w.ID] = memWidget{w: w, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) GetWidget(_ context.Context, id string) (*Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.widgets[id]
	if !ok || !e.expiresAt.After(s.now()) {
		return nil, nil
	}
	w := e.w
	return &w, nil
}

func (s *MemoryStore) DeleteWidget(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.widgets, id)
	return nil
}

func (s *MemoryStore) Spend(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if until, ok := s.spent[jti]; ok && until.After(now) {
		return false, nil
	}
	s.spent[jti] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for id, e := range s.widgets {
		if !e.expiresAt.After(now) {
			delete(s.widgets, id)
		}
	}
	for jti, until := range s.spent {
		if !until.After(now) {
			delete(s.spent, jti)
		}
	}
}

// RedisStore shares widgets and spent ids across servers.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a RedisStore using prefix (default "portfolyze:captcha:").
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "portfolyze:captcha:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) widgetKey(id string) string { return s.prefix + "widget:" + id }
func (s *RedisStore) spentKey(jti string) string { return s.prefix + "spent:" + jti }

func (s *RedisStore) PutWidget(ctx context.Context, w Widget, ttl time.Duration) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.widgetKey(w.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("captcha: redis put widget: %w", err)
	}
	return nil
}

func (s *RedisStore) GetWidget(ctx context.Context, id string) (*Widget, error) {
	raw, err := s.client.Get(ctx, s.widgetKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("captcha: redis get widget: %w", err)
	}
	var w Widget
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("captcha: decode widget: %w", err)
	}
	return &w, nil
}

func (s *RedisStore) DeleteWidget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.widgetKey(id)).Err(); err != nil {
		return fmt.Errorf("captcha: redis delete widget: %w", err)
	}
	return nil
}

func (s *RedisStore) Spend(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.spentKey(jti), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("captcha: redis spend: %w", err)
	}
	return ok, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
