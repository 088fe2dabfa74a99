package cache

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/outdial/outdial/internal/domain/dnc"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]*dnc.Entry
	lookups int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*dnc.Entry)}
}

func (s *memStore) Lookup(ctx context.Context, normalized string) (*dnc.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	e, ok := s.entries[normalized]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) RecordAttempt(ctx context.Context, entry *dnc.Entry) error {
	return s.add(entry)
}

func (s *memStore) Add(ctx context.Context, entry *dnc.Entry) error {
	return s.add(entry)
}

func (s *memStore) add(entry *dnc.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.PhoneNumber] = &cp
	return nil
}

func (s *memStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

func newTestCache(t *testing.T) (*DNCCache, *memStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := newMemStore()
	return NewDNCCache(client, store, zap.NewNop()), store, mr
}

func TestDNCCache_ReadThrough(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	entry, err := dnc.NewEntry("+15550000001", "consumer request")
	require.NoError(t, err)
	require.NoError(t, store.add(entry))

	got, err := c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, 1, store.lookupCount())

	// Second lookup is served from redis.
	got, err = c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, store.lookupCount())
}

func TestDNCCache_NegativeCaching(t *testing.T) {
	c, store, mr := newTestCache(t)
	ctx := context.Background()

	got, err := c.Lookup(ctx, "+15559999999")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.lookupCount())

	// Absence is cached too.
	got, err = c.Lookup(ctx, "+15559999999")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 1, store.lookupCount())

	// Once the negative entry expires the store is consulted again.
	mr.FastForward(dncNegativeTTL)
	_, err = c.Lookup(ctx, "+15559999999")
	require.NoError(t, err)
	assert.Equal(t, 2, store.lookupCount())
}

func TestDNCCache_AddRefreshesCache(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	// Prime a negative result.
	_, err := c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)

	entry, err := dnc.NewEntry("+15550000001", "callee declined")
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, entry))

	// The stale negative entry was overwritten, no store round-trip needed.
	lookupsBefore := store.lookupCount()
	got, err := c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Active)
	assert.Equal(t, lookupsBefore, store.lookupCount())
}

func TestDNCCache_RecordAttemptWritesThrough(t *testing.T) {
	c, store, _ := newTestCache(t)
	ctx := context.Background()

	entry, err := dnc.NewEntry("+15550000001", "consumer request")
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, entry))

	entry.RecordAttempt()
	require.NoError(t, c.RecordAttempt(ctx, entry))

	got, err := c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.Attempts)

	stored, err := store.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Attempts)
}

func TestDNCCache_RedisDownFallsBackToStore(t *testing.T) {
	c, store, mr := newTestCache(t)
	ctx := context.Background()

	entry, err := dnc.NewEntry("+15550000001", "consumer request")
	require.NoError(t, err)
	require.NoError(t, store.add(entry))

	mr.Close()

	got, err := c.Lookup(ctx, "+15550000001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.ID, got.ID)
}
