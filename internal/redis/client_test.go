package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := &Config{
		Address:  mr.Addr(),
		Password: "",
		DB:       0,
		PoolSize: 10,
	}

	client, err := NewClient(config)
	require.NoError(t, err)

	return client, mr
}

func TestNewClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	t.Run("successful connection", func(t *testing.T) {
		config := &Config{
			Address:  mr.Addr(),
			Password: "",
			DB:       0,
			PoolSize: 5,
		}

		client, err := NewClient(config)
		assert.NoError(t, err)
		assert.NotNil(t, client)

		err = client.Close()
		assert.NoError(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		client, err := NewClient(nil)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "redis config is required")
	})

	t.Run("sets default pool size", func(t *testing.T) {
		config := &Config{
			Address:  mr.Addr(),
			PoolSize: 0,
		}

		client, err := NewClient(config)
		require.NoError(t, err)
		defer client.Close()

		assert.Equal(t, 10, config.PoolSize)
	})

	t.Run("connection failure", func(t *testing.T) {
		config := &Config{
			Address:  "invalid:99999",
			Password: "",
			DB:       0,
			PoolSize: 5,
		}

		client, err := NewClient(config)
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "failed to connect to Redis")
	})
}

func TestClient_Health(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	t.Run("healthy connection", func(t *testing.T) {
		err := client.Health()
		assert.NoError(t, err)
	})

	t.Run("unhealthy connection", func(t *testing.T) {
		mr.Close()

		err := client.Health()
		assert.Error(t, err)
	})
}

func TestClient_IncrementWindow(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()

	t.Run("counts up from one", func(t *testing.T) {
		key := "test:window:basic"

		for i := int64(1); i <= 5; i++ {
			count, err := client.IncrementWindow(ctx, key, time.Minute)
			assert.NoError(t, err)
			assert.Equal(t, i, count)
		}
	})

	t.Run("independent keys count independently", func(t *testing.T) {
		count, err := client.IncrementWindow(ctx, "test:window:a", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, err = client.IncrementWindow(ctx, "test:window:b", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("counter expires after ttl", func(t *testing.T) {
		key := "test:window:expiry"

		_, err := client.IncrementWindow(ctx, key, time.Second)
		require.NoError(t, err)

		mr.FastForward(2 * time.Second)

		count, err := client.IncrementWindow(ctx, key, time.Second)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("fails on closed connection", func(t *testing.T) {
		mr.Close()

		_, err := client.IncrementWindow(ctx, "test:window:closed", time.Minute)
		assert.Error(t, err)
	})
}

func TestClient_IncrementWindow_Concurrency(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	ctx := context.Background()
	key := "test:window:concurrent"

	results := make(chan int64, 20)
	for i := 0; i < 20; i++ {
		go func() {
			count, err := client.IncrementWindow(ctx, key, time.Minute)
			assert.NoError(t, err)
			results <- count
		}()
	}

	// Every caller must observe a distinct post-increment count.
	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		count := <-results
		assert.False(t, seen[count], fmt.Sprintf("count %d observed twice", count))
		seen[count] = true
	}
	assert.Len(t, seen, 20)
}
