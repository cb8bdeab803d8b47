package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLockExclusive(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "communication-send:c1", time.Minute)
	b := NewRedisLock(client, "communication-send:c1", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("lock:communication-send:c1"))

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own it, so its release is a no-op
	require.NoError(t, b.Release(ctx))
	assert.True(t, mr.Exists("lock:communication-send:c1"))

	require.NoError(t, a.Release(ctx))
	assert.False(t, mr.Exists("lock:communication-send:c1"))
}

func TestRedisLockExpires(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	b := NewRedisLock(client, "k", time.Second)
	ok, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockExtend(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "k", time.Second)
	ok, _ := a.Acquire(ctx)
	require.True(t, ok)
	require.NoError(t, a.Extend(ctx, time.Minute))
	assert.Greater(t, mr.TTL("lock:k"), 30*time.Second)
}

func TestFactoryDo(t *testing.T) {
	_, client := newRedis(t)
	f := NewFactory(client, nil, time.Minute)
	ctx := context.Background()

	var inner error
	err := f.Do(ctx, "send:c1", func(ctx context.Context) error {
		inner = f.Do(ctx, "send:c1", func(context.Context) error { return nil })
		return nil
	})
	require.NoError(t, err)
	assert.True(t, errors.Is(inner, ErrNotAcquired))

	// released after the outer call returned
	called := false
	require.NoError(t, f.Do(ctx, "send:c1", func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestFactoryDoPropagatesError(t *testing.T) {
	_, client := newRedis(t)
	f := NewFactory(client, nil, time.Minute)
	boom := errors.New("boom")
	err := f.Do(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "communication-send:c1")

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLockBusy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "k")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
