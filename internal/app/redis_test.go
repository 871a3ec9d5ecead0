package app

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/config"
)

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisAddr: mr.Addr()}
	require.True(t, RedisEnabled(cfg))
	assert.Equal(t, mr.Addr(), AsynqRedis(cfg).Addr)

	client := NewRedisClient(cfg)
	defer client.Close()

	check := RedisCheck(client)
	require.NoError(t, check(context.Background()))

	mr.Close()
	assert.Error(t, check(context.Background()))
}

func TestRedisEnabled_EmptyAddr(t *testing.T) {
	assert.False(t, RedisEnabled(&config.Config{}))
}
