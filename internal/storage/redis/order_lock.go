// Package redis holds the Redis-backed order lock that short-circuits
// double submits of the same order code across API instances.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/NavanKen/Eventify/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "eventify:order-lock:"

// unlockScript deletes the key only while it still holds our token, so an
// expired lock that another request re-acquired is left alone.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// NewClient parses url (redis://...) and checks the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3

	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

type OrderLocker struct {
	client goredis.Cmdable
	ttl    time.Duration
	token  func() string
}

// NewOrderLocker returns a locker whose locks expire after ttl, which bounds
// how long a crashed request can block its order code.
func NewOrderLocker(client goredis.Cmdable, ttl time.Duration) *OrderLocker {
	return &OrderLocker{
		client: client,
		ttl:    ttl,
		token:  uuid.NewString,
	}
}

func (l *OrderLocker) Lock(ctx context.Context, orderCode string) (string, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, keyPrefix+orderCode, token, l.ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire order lock: %w", err)
	}
	if !ok {
		return "", domain.ErrPurchaseInProgress
	}
	return token, nil
}

func (l *OrderLocker) Unlock(ctx context.Context, orderCode, token string) error {
	if err := l.client.Eval(ctx, unlockScript, []string{keyPrefix + orderCode}, token).Err(); err != nil {
		return fmt.Errorf("release order lock: %w", err)
	}
	return nil
}
