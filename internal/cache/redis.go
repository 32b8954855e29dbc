package cache

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is the optional CACHE_TYPE=redis backend named in the
// domain stack: TTL maps directly onto Redis's own key expiry (SETEX),
// so eviction-by-TTL is delegated to the server. Byte-bounded LRU
// eviction is not implemented against Redis (Redis has no notion of "the
// segment cache's own byte budget" without a maxmemory policy of its
// own); operators relying on this backend size Redis's maxmemory and
// eviction policy independently. Entry/byte counters here are therefore
// best-effort local approximations, not exact global figures.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	entries   atomic.Int64
	bytes     atomic.Int64
	evictions atomic.Int64
}

func NewRedisBackend(client *redis.Client, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisBackend) redisKey(key Key) string {
	return r.prefix + key.flightKey()
}

func encodeValue(v Value) []byte {
	ct := []byte(v.ContentType)
	buf := make([]byte, 2+len(ct)+len(v.Data))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(ct)))
	copy(buf[2:2+len(ct)], ct)
	copy(buf[2+len(ct):], v.Data)
	return buf
}

func decodeValue(buf []byte) Value {
	if len(buf) < 2 {
		return Value{}
	}
	ctLen := int(binary.BigEndian.Uint16(buf[:2]))
	if 2+ctLen > len(buf) {
		return Value{}
	}
	return Value{
		ContentType: string(buf[2 : 2+ctLen]),
		Data:        buf[2+ctLen:],
	}
}

func (r *RedisBackend) Get(key Key) (Value, bool) {
	ctx := context.Background()
	buf, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		return Value{}, false
	}
	return decodeValue(buf), true
}

func (r *RedisBackend) Set(key Key, value Value) {
	ctx := context.Background()
	buf := encodeValue(value)
	if err := r.client.Set(ctx, r.redisKey(key), buf, r.ttl).Err(); err != nil {
		return
	}
	r.entries.Add(1)
	r.bytes.Add(int64(len(buf)))
}

func (r *RedisBackend) Delete(key Key) {
	ctx := context.Background()
	r.client.Del(ctx, r.redisKey(key))
}

func (r *RedisBackend) Len() int {
	return int(r.entries.Load())
}

func (r *RedisBackend) Bytes() int64 {
	return r.bytes.Load()
}

func (r *RedisBackend) Evictions() int64 {
	return r.evictions.Load()
}
