package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "report:version"
	bumpChannel     = "report.bump"
	// cacheSchema tags every key so envelope shape changes never read old
	// payloads.
	cacheSchema = "v2"
)

// Cache wraps Redis based result caching for default-mode reports. Entries
// carry the latest period they were computed for; a hit whose period no
// longer matches the store's latest month is treated as a miss, so a fresh
// allowance load invalidates results even before any explicit bump.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching;
// every method degrades to a pass-through.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// envelope is the stored form: payload plus the period it was computed for.
type envelope struct {
	Period  string          `json:"period"`
	Payload json.RawMessage `json:"payload"`
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
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

// BuildKey composes the cache key with the schema tag and current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"report", cacheSchema}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value when it is still current for wantPeriod,
// otherwise populates it via the loader. The loader returns the value
// together with the period it was computed for.
func (c *Cache) FetchJSON(ctx context.Context, key, wantPeriod string, dest interface{}, loader func(context.Context) (interface{}, string, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, _, err := loader(ctx)
		if err != nil {
			return err
		}
		return recode(value, dest)
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var env envelope
		if jerr := json.Unmarshal(raw, &env); jerr == nil && env.Period == wantPeriod {
			return json.Unmarshal(env.Payload, dest)
		}
		// Stale or undecodable: fall through to reload.
	} else if err != redis.Nil {
		return err
	}
	value, period, err := loader(ctx)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	stored, err := json.Marshal(envelope{Period: period, Payload: payload})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, stored, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(payload, dest)
}

// Bump invalidates all cached reports by incrementing the global version and
// publishing an event for other instances.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
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
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func recode(value, dest interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func keyDashboard() []string { return []string{"dashboard", "default"} }

func keySummary() []string { return []string{"summary", "default"} }

func keyAnalytics(client string) []string {
	return []string{"analytics", strings.ToLower(client)}
}

func keyExport() []string { return []string{"export", "default"} }
