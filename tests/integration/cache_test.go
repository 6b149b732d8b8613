package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "station:it-1:status", `{"status":"FULL"}`, time.Minute))

	val, err := c.Get(ctx, "station:it-1:status")
	require.NoError(t, err)
	require.Equal(t, `{"status":"FULL"}`, val)

	require.NoError(t, c.Delete(ctx, "station:it-1:status"))

	_, err = c.Get(ctx, "station:it-1:status")
	require.Error(t, err, "a deleted key must miss")
}

func TestRedisCache_TTLExpires(t *testing.T) {
	c := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "evt:ttl-test", "1", 500*time.Millisecond))

	_, err := c.Get(ctx, "evt:ttl-test")
	require.NoError(t, err)

	time.Sleep(time.Second)

	_, err = c.Get(ctx, "evt:ttl-test")
	require.Error(t, err, "expired key must miss")
}

func TestRedisCache_Ping(t *testing.T) {
	c := setupRedis(t)
	require.NoError(t, c.Ping())
}
