package cache

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Client is the subset of the redis client the guest token cache uses.
type Client interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// GuestTokens keeps the time-boxed credentials issued to guest performers,
// stored under <prefix>:<taskID> with per-guest entries below it.
type GuestTokens struct {
	client    Client
	keyPrefix string
}

type Options struct {
	Address   string
	Password  string
	Database  int
	KeyPrefix string
}

func NewGuestTokens(opts Options) *GuestTokens {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.Database,
	})
	return NewGuestTokensWithClient(rdb, opts.KeyPrefix)
}

func NewGuestTokensWithClient(client Client, keyPrefix string) *GuestTokens {
	return &GuestTokens{client: client, keyPrefix: keyPrefix}
}

func (g *GuestTokens) buildKey(taskID string) string {
	return fmt.Sprintf("%s:%s", g.keyPrefix, taskID)
}

// Invalidate drops the task-level token so guests must re-authenticate.
func (g *GuestTokens) Invalidate(ctx context.Context, taskID string) error {
	if err := g.client.Del(ctx, g.buildKey(taskID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate guest token of task %s: %w", taskID, err)
	}
	return nil
}

// Delete removes the task token and every per-guest entry below it.
func (g *GuestTokens) Delete(ctx context.Context, taskID string) error {
	if err := g.Invalidate(ctx, taskID); err != nil {
		return err
	}
	pattern := g.buildKey(taskID) + ":*"
	var cursor uint64
	for {
		keys, next, err := g.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan guest tokens: %w", err)
		}
		if len(keys) > 0 {
			if err := g.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete guest tokens: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
