package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	versionKey  = "finance:position:version"
	bumpChannel = "finance.position.bump"
)

// Cache stores built reports in Redis under versioned keys. Every finance
// write calls Bump, which moves readers to a fresh key space; old entries
// expire on their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current key-space version. A missing counter is version 0.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

// Key names the cached report for the period under the current version.
func (c *Cache) Key(ctx context.Context, start, end time.Time) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("finance:position:v%d:%s:%s", ver, start.Format(DateLayout), end.Format(DateLayout)), nil
}

// Get loads a cached report. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, key string) (report Report, ok bool, err error) {
	if !c.enabled() {
		return Report{}, false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, err
	}
	if err := json.Unmarshal(raw, &report); err != nil {
		return Report{}, false, fmt.Errorf("position: decode cached report: %w", err)
	}
	return report, true, nil
}

// Put stores report under key for the configured TTL.
func (c *Cache) Put(ctx context.Context, key string, report Report) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates cached reports and announces the new version.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe streams bumped versions until ctx is cancelled. Bumps arriving
// while the previous one is unread are coalesced.
func (c *Cache) Subscribe(ctx context.Context) <-chan int64 {
	out := make(chan int64, 1)
	if !c.enabled() {
		close(out)
		return out
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- ver:
				default:
				}
			}
		}
	}()
	return out
}
