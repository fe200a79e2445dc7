package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	ometrics "github.com/socraticlabs/tutor-orchestrator/internal/metrics"
)

// Cache stores embedding vectors keyed by model+text hash.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32, ttl time.Duration)
}

func cacheKey(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return "emb:" + hex.EncodeToString(h[:16])
}

// RedisCache is a best-effort redis-backed embedding cache. Failures are
// treated as misses; the embedding service is the source of truth.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil || len(raw)%4 != 0 || len(raw) == 0 {
		ometrics.EmbeddingCacheMisses.Inc()
		return nil, false
	}
	vec := decodeVector(raw)
	ometrics.EmbeddingCacheHits.Inc()
	return vec, true
}

func (c *RedisCache) Set(ctx context.Context, key string, vec []float32, ttl time.Duration) {
	_ = c.rdb.Set(ctx, key, encodeVector(vec), ttl).Err()
}

// Vectors are stored as packed little-endian float32 bits; far smaller than
// JSON for the dimensionalities involved.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
