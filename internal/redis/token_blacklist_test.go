package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisDriver "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlacklist(t *testing.T) (*miniredis.Miniredis, *redisTokenBlacklist) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisDriver.NewClient(&redisDriver.Options{Addr: mr.Addr()})
	return mr, &redisTokenBlacklist{client: client}
}

func TestAddAndIsBlacklisted(t *testing.T) {
	mr, bl := newTestBlacklist(t)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, "jti-1", time.Now().Add(time.Hour)))

	revoked, err := bl.IsBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = bl.IsBlacklisted(ctx, "jti-unknown")
	require.NoError(t, err)
	assert.False(t, revoked)

	// TTL 与令牌剩余有效期一致
	ttl := mr.TTL(blacklistKeyPrefix + "jti-1")
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestAddExpiredTokenIsNoop(t *testing.T) {
	mr, bl := newTestBlacklist(t)
	ctx := context.Background()

	// 已过期的令牌由 JWT 校验本身拒绝, 不需要占用黑名单
	require.NoError(t, bl.Add(ctx, "jti-old", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(blacklistKeyPrefix+"jti-old"))
}

func TestBlacklistEntryExpires(t *testing.T) {
	mr, bl := newTestBlacklist(t)
	ctx := context.Background()

	require.NoError(t, bl.Add(ctx, "jti-2", time.Now().Add(time.Minute)))
	mr.FastForward(2 * time.Minute)

	revoked, err := bl.IsBlacklisted(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}
