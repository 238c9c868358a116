package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"keystone/internal/sentinel"
)

const blacklistKeyPrefix = "token_blacklist:"

// RedisBlacklist is a Redis-backed Blacklist for distributed
// deployments. SETNX gives the unique-insert guarantee the port
// requires: of two concurrent consumers of the same token exactly one
// wins the write, the other observes the conflict.
type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := b.client.Pipeline()
	results := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		results[i] = pipe.Exists(ctx, blacklistKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check blacklist: %w", err)
	}
	var hits []string
	for i, result := range results {
		if result.Val() > 0 {
			hits = append(hits, ids[i])
		}
	}
	return hits, nil
}

func (b *RedisBlacklist) Blacklist(ctx context.Context, ids []string, expiresOn time.Time) error {
	ttl := time.Until(expiresOn)
	if ttl <= 0 {
		// The token is already past its own expiry; nothing to hold.
		return nil
	}
	for _, id := range ids {
		set, err := b.client.SetNX(ctx, blacklistKeyPrefix+id, "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("blacklist token id: %w", err)
		}
		if !set {
			return fmt.Errorf("token id %s: %w", id, sentinel.ErrBlacklisted)
		}
	}
	return nil
}
