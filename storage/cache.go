package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

// Cache wraps a Store with Redis-backed caching for board loads. Every write
// evicts the owner's cached board; Redis failures fall through to the backing
// store without failing the call.
type Cache struct {
	base  Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) Granularity() Granularity { return c.base.Granularity() }

func (c *Cache) LoadBoard(ctx context.Context, ownerID string) (*domain.Board, error) {
	if b, ok := c.loadFromCache(ctx, ownerID); ok {
		return b, nil
	}
	b, err := c.base.LoadBoard(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if b != nil {
		c.store(ctx, ownerID, b)
	}
	return b, nil
}

func (c *Cache) SaveBoard(ctx context.Context, ownerID string, b *domain.Board) error {
	if err := c.base.SaveBoard(ctx, ownerID, b); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) CreateRecord(ctx context.Context, ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) error {
	if err := c.base.CreateRecord(ctx, ownerID, card, col, position, archived); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) UpdateRecord(ctx context.Context, ownerID, cardID string, patch RecordPatch) error {
	if err := c.base.UpdateRecord(ctx, ownerID, cardID, patch); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) DeleteRecord(ctx context.Context, ownerID, cardID string) error {
	if err := c.base.DeleteRecord(ctx, ownerID, cardID); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, ownerID string) (*domain.Board, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(ownerID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, boardCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var b domain.Board
	if err := json.Unmarshal(data, &b); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(ownerID)).Err()
		return nil, false
	}
	return &b, true
}

func (c *Cache) store(ctx context.Context, ownerID string, b *domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(b)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(ownerID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(ownerID)).Result()
}

func boardCacheKey(ownerID string) string {
	return "board:" + ownerID
}
