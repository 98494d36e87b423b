package lock

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_FreeKey(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := New(rdb)

	mock.ExpectSetNX("booking:unit:7:1720000000", "owner-a", 10*time.Second).SetVal(true)

	ok, err := svc.Acquire(context.Background(), "booking:unit:7:1720000000", "owner-a", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_Contended(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := New(rdb)

	mock.ExpectSetNX("booking:unit:7:1720000000", "owner-b", 10*time.Second).SetVal(false)

	ok, err := svc.Acquire(context.Background(), "booking:unit:7:1720000000", "owner-b", 10*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "a held key must report contention, not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := New(rdb)

	mock.ExpectDel("booking:unit:7:1720000000").SetVal(1)

	require.NoError(t, svc.Release(context.Background(), "booking:unit:7:1720000000"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseOwned(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	svc := New(rdb)

	mock.ExpectEvalSha(releaseOwnedScript.Hash(), []string{"tick:end-due"}, "owner-a").SetVal(int64(1))

	ok, err := svc.ReleaseOwned(context.Background(), "tick:end-due", "owner-a")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectEvalSha(releaseOwnedScript.Hash(), []string{"tick:end-due"}, "owner-b").SetVal(int64(0))

	ok, err = svc.ReleaseOwned(context.Background(), "tick:end-due", "owner-b")
	require.NoError(t, err)
	assert.False(t, ok, "a non-owner must not release the lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}
