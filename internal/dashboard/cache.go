package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "insights:version"
	bumpChannel     = "insights.bump"
)

// Cache stores raw backend responses in Redis under versioned keys. Bumping the version
// invalidates every entry at once.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	onError func(error)
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// OnError registers a callback for Redis failures that Fetch absorbs.
func (c *Cache) OnError(fn func(error)) {
	if c != nil {
		c.onError = fn
	}
}

func (c *Cache) report(err error) {
	if c.onError != nil {
		c.onError(err)
	}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(parts, ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// Fetch returns the cached body under key or populates it using the loader. hit is
// true when the body came from Redis. Loader errors are never cached. Redis failures
// are reported through OnError and fall back to the loader.
func (c *Cache) Fetch(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) (body []byte, hit bool, err error) {
	if loader == nil {
		return nil, false, errors.New("cache: loader required")
	}
	if !c.enabled() {
		body, err = loader(ctx)
		return body, false, err
	}
	body, err = c.client.Get(ctx, key).Bytes()
	if err == nil {
		return body, true, nil
	}
	if !errors.Is(err, redis.Nil) {
		c.report(fmt.Errorf("cache: get %s: %w", key, err))
	}
	body, err = loader(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		c.report(fmt.Errorf("cache: set %s: %w", key, err))
	}
	return body, false, nil
}

// Bump invalidates the cache by incrementing the global version and publishing an event.
func (c *Cache) Bump(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return 0, err
	}
	return ver, c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other instances until ctx
// is done.
func (c *Cache) ListenForInvalidation(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				current, err := c.client.Get(ctx, cacheVersionKey).Int64()
				if err == nil && current >= ver {
					continue
				}
				_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
			}
		}
	}()
	return nil
}

func panelKey(kind, id, endpoint, encoded string) string {
	if encoded == "" {
		encoded = "-"
	}
	return strings.Join([]string{"insights", kind, id, endpoint, encoded}, ":")
}
