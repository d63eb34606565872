package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"kanban-api/domain"
)

// fakeStore counts calls so tests can observe cache hits and evictions.
type fakeStore struct {
	board *domain.Board
	gran  Granularity

	loads   int
	saves   int
	creates int
	updates int
	deletes int
}

func (f *fakeStore) LoadBoard(ctx context.Context, ownerID string) (*domain.Board, error) {
	f.loads++
	if f.board == nil {
		return nil, nil
	}
	return f.board.Clone(), nil
}

func (f *fakeStore) SaveBoard(ctx context.Context, ownerID string, b *domain.Board) error {
	f.saves++
	return nil
}

func (f *fakeStore) CreateRecord(ctx context.Context, ownerID string, card *domain.Card, col domain.ColumnID, position int, archived bool) error {
	f.creates++
	return nil
}

func (f *fakeStore) UpdateRecord(ctx context.Context, ownerID, cardID string, patch RecordPatch) error {
	f.updates++
	return nil
}

func (f *fakeStore) DeleteRecord(ctx context.Context, ownerID, cardID string) error {
	f.deletes++
	return nil
}

func (f *fakeStore) Granularity() Granularity { return f.gran }

func newCacheFixture(t *testing.T) (*Cache, *fakeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	base := &fakeStore{board: domain.SeedExamples(), gran: GranularityRecord}
	return NewCache(base, client, time.Hour), base, mr
}

func TestCacheServesSecondLoad(t *testing.T) {
	c, base, _ := newCacheFixture(t)
	ctx := context.Background()

	first, err := c.LoadBoard(ctx, "u1")
	if err != nil || first == nil {
		t.Fatalf("load: (%v, %v)", first, err)
	}
	second, err := c.LoadBoard(ctx, "u1")
	if err != nil || second == nil {
		t.Fatalf("load: (%v, %v)", second, err)
	}
	if base.loads != 1 {
		t.Fatalf("expected a single backing load, got %d", base.loads)
	}
	if len(second.Cards) != len(first.Cards) {
		t.Fatalf("cached board differs: %d vs %d cards", len(second.Cards), len(first.Cards))
	}
}

func TestCacheWritesEvict(t *testing.T) {
	c, base, _ := newCacheFixture(t)
	ctx := context.Background()

	if _, err := c.LoadBoard(ctx, "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.UpdateRecord(ctx, "u1", "c1", RecordPatch{}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := c.LoadBoard(ctx, "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if base.loads != 2 {
		t.Fatalf("expected reload after eviction, got %d loads", base.loads)
	}
	if base.updates != 1 {
		t.Fatalf("expected delegated update, got %d", base.updates)
	}
}

func TestCacheEvictionScopedToOwner(t *testing.T) {
	c, base, _ := newCacheFixture(t)
	ctx := context.Background()

	if _, err := c.LoadBoard(ctx, "u1"); err != nil {
		t.Fatalf("load u1: %v", err)
	}
	if _, err := c.LoadBoard(ctx, "u2"); err != nil {
		t.Fatalf("load u2: %v", err)
	}
	if err := c.DeleteRecord(ctx, "u1", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.LoadBoard(ctx, "u2"); err != nil {
		t.Fatalf("load u2: %v", err)
	}
	if base.loads != 2 {
		t.Fatalf("u2 cache entry must survive u1 writes, got %d loads", base.loads)
	}
}

func TestCacheCorruptEntryFallsThrough(t *testing.T) {
	c, base, mr := newCacheFixture(t)
	ctx := context.Background()

	mr.Set(boardCacheKey("u1"), "{broken")
	b, err := c.LoadBoard(ctx, "u1")
	if err != nil || b == nil {
		t.Fatalf("load: (%v, %v)", b, err)
	}
	if base.loads != 1 {
		t.Fatalf("expected backing load after corrupt cache entry, got %d", base.loads)
	}
}

func TestCacheRedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	base := &fakeStore{board: domain.SeedExamples(), gran: GranularityRecord}
	c := NewCache(base, client, time.Hour)
	mr.Close()

	b, err := c.LoadBoard(context.Background(), "u1")
	if err != nil || b == nil {
		t.Fatalf("redis outage must not fail loads: (%v, %v)", b, err)
	}
	if base.loads != 1 {
		t.Fatalf("expected backing load, got %d", base.loads)
	}
}

func TestCacheDoesNotCacheAbsentBoards(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	base := &fakeStore{board: nil, gran: GranularityRecord}
	c := NewCache(base, client, time.Hour)
	ctx := context.Background()

	if b, err := c.LoadBoard(ctx, "u1"); err != nil || b != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", b, err)
	}
	if mr.Exists(boardCacheKey("u1")) {
		t.Fatalf("absent boards must not be cached")
	}
}

func TestCacheGranularityDelegates(t *testing.T) {
	c, _, _ := newCacheFixture(t)
	if c.Granularity() != GranularityRecord {
		t.Fatalf("granularity must delegate to the base store")
	}
}
