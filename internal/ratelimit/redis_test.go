package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/clock"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisWindow(t *testing.T) {
	addr := os.Getenv("CHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skip: CHAT_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}

	clk := clock.NewFake(time.Now())
	w := NewRedisWindow(client, "chat-test:"+uuid.NewString()+":", clk)

	for i := 0; i < 3; i++ {
		ok, err := w.Admit(ctx, "10.0.0.9", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		clk.Advance(time.Millisecond)
	}
	ok, err := w.Admit(ctx, "10.0.0.9", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Advance(time.Minute)
	ok, err = w.Admit(ctx, "10.0.0.9", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
