package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreams_PublishAndReadGroup(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	require.NoError(t, Ping(ctx, client))
	require.NoError(t, CreateConsumerGroup(ctx, client, "wearable:data:stream", "test-group"))
	// 组已存在时不报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "wearable:data:stream", "test-group"))

	id, err := PublishJSONToStream(ctx, client, "wearable:data:stream", 0, "reading", map[string]int{"heartRate": 72})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := ReadFromStream(ctx, client, "wearable:data:stream", "test-group", "c1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "reading", msgs[0].Values["type"])
	assert.JSONEq(t, `{"heartRate":72}`, msgs[0].Values["data"].(string))
}

func TestPublishToStream_ConvertsValues(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"n":    42,
		"ok":   true,
		"list": []int{1, 2},
	})
	require.NoError(t, err)

	entries, err := client.XRange(ctx, "s", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].Values["n"])
	assert.Equal(t, "true", entries[0].Values["ok"])
	assert.Equal(t, "[1,2]", entries[0].Values["list"])
}

func TestNewRedisClient_UsesConfig(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr(), DB: 2, PoolSize: 3, DialTimeout: time.Second})
	defer client.Close()

	opts := client.Options()
	assert.Equal(t, 3, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)
	assert.Equal(t, 2, opts.DB)
	require.NoError(t, Ping(context.Background(), client))
}

func TestPing_ReportsAddress(t *testing.T) {
	client := NewRedisClient(&config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	err := Ping(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
