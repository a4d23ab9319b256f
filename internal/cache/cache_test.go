package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockRedis(t *testing.T) redismock.ClientMock {
	t.Helper()
	client, mock := redismock.NewClientMock()
	UseClient(client, "caz")
	t.Cleanup(func() {
		UseClient(nil, "")
	})
	return mock
}

func TestBuildKey(t *testing.T) {
	setupMockRedis(t)
	assert.Equal(t, "caz:lock:x", BuildKey("lock:x"))
	assert.Equal(t, "caz", BuildKey("  "))
}

func TestAcquireAndReleaseLock(t *testing.T) {
	mock := setupMockRedis(t)
	previous := newLockToken
	newLockToken = func() string { return "token-1" }
	t.Cleanup(func() { newLockToken = previous })

	mock.ExpectSetNX("caz:lock:dangling", "token-1", time.Minute).SetVal(true)
	mock.ExpectEvalSha(releaseLockScript.Hash(), []string{"caz:lock:dangling"}, "token-1").SetVal(int64(1))

	lock, ok, err := AcquireLock(context.Background(), "dangling", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockHeldElsewhere(t *testing.T) {
	mock := setupMockRedis(t)
	previous := newLockToken
	newLockToken = func() string { return "token-2" }
	t.Cleanup(func() { newLockToken = previous })

	mock.ExpectSetNX("caz:lock:dangling", "token-2", time.Minute).SetVal(false)

	lock, ok, err := AcquireLock(context.Background(), "dangling", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, lock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLockWithoutRedis(t *testing.T) {
	UseClient(nil, "")
	lock, ok, err := AcquireLock(context.Background(), "dangling", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, lock.Release(context.Background()))
}

func TestIdempotencyRoundTrip(t *testing.T) {
	mock := setupMockRedis(t)
	ctx := context.Background()

	mock.ExpectSetNX("caz:idempotency:payments:key-1:pending", 1, idempotencyPendingTTL).SetVal(true)
	reserved, err := ReserveIdempotencyKey(ctx, "payments", "key-1")
	require.NoError(t, err)
	require.True(t, reserved)

	resp := &IdempotentResponse{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`), StoredAt: 1700000000}
	payload, err := json.Marshal(resp)
	require.NoError(t, err)
	mock.ExpectSet("caz:idempotency:payments:key-1", payload, time.Hour).SetVal("OK")
	mock.ExpectDel("caz:idempotency:payments:key-1:pending").SetVal(1)
	require.NoError(t, SaveIdempotentResponse(ctx, "payments", "key-1", resp, time.Hour))

	mock.ExpectGet("caz:idempotency:payments:key-1").SetVal(string(payload))
	stored, hit, err := GetIdempotentResponse(ctx, "payments", "key-1")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 200, stored.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(stored.Body))

	mock.ExpectGet("caz:idempotency:payments:key-2").RedisNil()
	_, hit, err = GetIdempotentResponse(ctx, "payments", "key-2")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPingAndMissWithMock(t *testing.T) {
	mock := setupMockRedis(t)
	mock.ExpectPing().SetVal("PONG")
	mock.ExpectGet("caz:idempotency:payments:absent").RedisNil()

	require.NoError(t, Ping(context.Background()))
	var resp IdempotentResponse
	hit, err := GetJSON(context.Background(), "idempotency:payments:absent", &resp)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDisabledCacheIsNoop(t *testing.T) {
	UseClient(nil, "")
	assert.False(t, Enabled())
	assert.NoError(t, Ping(context.Background()))
	assert.NoError(t, SetJSON(context.Background(), "k", 1, time.Minute))
	ok, err := ReserveIdempotencyKey(context.Background(), "payments", "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
