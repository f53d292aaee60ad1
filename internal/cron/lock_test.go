package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryLockStore struct {
	values map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{values: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockIsExclusive(t *testing.T) {
	store := newMemoryLockStore()
	key := LockKey("prod")
	first, err := NewRedisLock(store, key, 0)
	require.NoError(t, err)
	second, err := NewRedisLock(store, key, 0)
	require.NoError(t, err)

	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, second.Release(context.Background()))
	assert.Contains(t, store.values, key, "non-owner must not release")

	require.NoError(t, first.Release(context.Background()))
	assert.NotContains(t, store.values, key)

	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := newMemoryLockStore()
	lock, err := NewRedisLock(store, LockKey(""), time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	delete(store.values, LockKey(""))
	assert.NoError(t, lock.Release(context.Background()))
}

func TestRedisLockReleaseLeavesNewHolder(t *testing.T) {
	store := newMemoryLockStore()
	key := LockKey("dev")
	stale, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)
	ok, err := stale.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// simulate TTL expiry followed by another worker taking the lock
	delete(store.values, key)
	fresh, err := NewRedisLock(store, key, time.Minute)
	require.NoError(t, err)
	ok, err = fresh.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(context.Background()))
	assert.Contains(t, store.values, key)
}

func TestNewRedisLockValidatesInput(t *testing.T) {
	_, err := NewRedisLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewRedisLock(newMemoryLockStore(), "", time.Minute)
	assert.Error(t, err)
}

func TestLockKeyDefaultsToLocal(t *testing.T) {
	assert.Equal(t, "cron-worker:lock:local", LockKey(" "))
	assert.Equal(t, "cron-worker:lock:dev", LockKey("dev"))
}
