package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// genTTL bounds how long an idle key's generation counter survives.
const genTTL = 24 * time.Hour

// RedisCache keeps each value next to a generation counter. Values are
// stored with the generation they were loaded under and are ignored once
// the counter has moved on, so a late Set cannot resurrect dropped data.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

type redisEntry struct {
	Gen uint64          `json:"gen"`
	Val json.RawMessage `json:"val"`
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &RedisCache{Client: client, TTL: ttl, Prefix: "forum:"}
}

func (c *RedisCache) genKey(key string) string {
	return c.Prefix + key + ":gen"
}

func (c *RedisCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	vals, err := c.Client.MGet(ctx, c.Prefix+key, c.genKey(key)).Result()
	if err != nil {
		return false, err
	}
	raw, ok := vals[0].(string)
	if !ok {
		return false, nil
	}
	gen, err := parseGen(vals[1])
	if err != nil {
		return false, err
	}
	var e redisEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return false, err
	}
	if e.Gen != gen {
		return false, nil
	}
	if err := json.Unmarshal(e.Val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) Generation(ctx context.Context, key string) (uint64, error) {
	v, err := c.Client.Get(ctx, c.genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(v)
}

func (c *RedisCache) Set(ctx context.Context, key string, gen uint64, value any) error {
	val, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b, err := json.Marshal(redisEntry{Gen: gen, Val: val})
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.Prefix+key, b, c.TTL).Err()
}

// Delete bumps the generation before removing the value, so a Set racing
// with it writes an entry Get already refuses.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.Client.Incr(ctx, c.genKey(key)).Err(); err != nil {
		return err
	}
	if err := c.Client.Expire(ctx, c.genKey(key), genTTL).Err(); err != nil {
		return err
	}
	return c.Client.Del(ctx, c.Prefix+key).Err()
}

func parseGen(v any) (uint64, error) {
	switch g := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.ParseUint(g, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cache generation %q: %w", g, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cache generation: unexpected %T", v)
	}
}
