package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// luaSetIfGen stores a loaded value only if no Del ran since the loader
// started, so a read that raced an invalidation cannot repopulate the key.
// KEYS[1] = key, KEYS[2] = generation key
// ARGV[1] = generation seen before loading, ARGV[2] = value, ARGV[3] = ttl_ms
const luaSetIfGen = `
local gen = redis.call('GET', KEYS[2]) or ''
if gen ~= ARGV[1] then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`

// luaDelBump deletes every key and advances its generation.
// KEYS = key1, gen1, key2, gen2, ...
// ARGV[1] = generation ttl_ms
const luaDelBump = `
for i = 1, #KEYS, 2 do
  redis.call('DEL', KEYS[i])
  redis.call('INCR', KEYS[i + 1])
  redis.call('PEXPIRE', KEYS[i + 1], ARGV[1])
end
return 1
`

// genTTL outlives any loader; an expired generation only makes an
// in-flight store miss.
const genTTL = time.Hour

// Cache is a JSON read-through cache. A nil *Cache is valid and caches
// nothing: every read goes to the loader.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	sf  singleflight.Group

	setIfGen *redis.Script
	delBump  *redis.Script
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		rdb:      client,
		ttl:      ttl,
		setIfGen: redis.NewScript(luaSetIfGen),
		delBump:  redis.NewScript(luaDelBump),
	}
}

func genKey(key string) string { return key + ":gen" }

// generation returns the current generation of key, "" if it has none.
func (c *Cache) generation(ctx context.Context, key string) (string, error) {
	g, err := c.rdb.Get(ctx, genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return g, err
}

func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return s, true, nil
}

func (c *Cache) SetString(
	ctx context.Context,
	key string,
	val string,
	ttl time.Duration,
) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

// Del removes keys and bumps their generations, which discards any load of
// those keys still in flight.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, genKey(k))
	}

	return c.delBump.Run(ctx, c.rdb, pairs, genTTL.Milliseconds()).Err()
}

func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}

	return out, true, nil
}

func SetJSON(
	ctx context.Context,
	c *Cache,
	key string,
	val any,
	ttl time.Duration,
) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.SetString(ctx, key, string(b), ttl)
}

// GetOrSetJSON returns the cached value under key, or loads, stores and
// returns it. Concurrent misses on one key share a single loader call.
// Redis read and write failures degrade to calling the loader. A Del of key
// while the loader runs keeps its result out of the cache.
//
// Parameters:
//   - ctx: request-scoped context.
//   - c: cache; nil disables caching.
//   - key: cache key.
//   - loader: source of truth, called on a miss.
//
// Returns:
//   - T: the cached or freshly loaded value.
//   - error: the loader's error.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	if v, ok, err := GetJSON[T](ctx, c, key); err == nil && ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key, func() (any, error) {
		if v2, ok2, err2 := GetJSON[T](ctx, c, key); err2 == nil && ok2 {
			return v2, nil
		}
		gen, genErr := c.generation(ctx, key)
		v3, err3 := loader(ctx)
		if err3 != nil {
			return nil, err3
		}
		if genErr == nil {
			if b, err := json.Marshal(v3); err == nil {
				_ = c.setIfGen.Run(ctx, c.rdb, []string{key, genKey(key)}, gen, string(b), c.ttl.Milliseconds()).Err()
			}
		}
		return v3, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, errors.New("type assertion failed")
	}

	return v, nil
}

func (c *Cache) InvalidateActivity(ctx context.Context, id uuid.UUID) error {
	return c.Del(ctx, KeyActivity(id))
}
