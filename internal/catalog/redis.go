package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/awsl-dev/vidstream/internal/models"
)

// chunkListTTL bounds staleness of cached chunk lists.
const chunkListTTL = 5 * time.Minute

// ChunkCache caches an episode's ordered chunk list. A nil return from
// Get with a nil error is a cache miss.
type ChunkCache interface {
	GetChunks(ctx context.Context, episodeID int64) ([]models.ChunkRecord, error)
	SetChunks(ctx context.Context, episodeID int64, chunks []models.ChunkRecord) error
	InvalidateChunks(ctx context.Context, episodeID int64) error
}

// RedisCache is the Redis-backed ChunkCache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects and verifies the Redis instance.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func chunkKey(episodeID int64) string {
	return fmt.Sprintf("chunks:%d", episodeID)
}

// GetChunks returns the cached ordered chunk list, or (nil, nil) on miss.
func (rc *RedisCache) GetChunks(ctx context.Context, episodeID int64) ([]models.ChunkRecord, error) {
	ctx, span := tracer.Start(ctx, "cache.get_chunks",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, chunkKey(episodeID)).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("cache_hit", false))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var chunks []models.ChunkRecord
	if err := json.Unmarshal([]byte(data), &chunks); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("unmarshal cached chunks: %w", err)
	}
	span.SetAttributes(attribute.Bool("cache_hit", true))
	return chunks, nil
}

// SetChunks stores the ordered chunk list with a TTL.
func (rc *RedisCache) SetChunks(ctx context.Context, episodeID int64, chunks []models.ChunkRecord) error {
	ctx, span := tracer.Start(ctx, "cache.set_chunks",
		trace.WithAttributes(
			attribute.Int64("episode_id", episodeID),
			attribute.Int("chunk_count", len(chunks)),
		),
	)
	defer span.End()

	data, err := json.Marshal(chunks)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := rc.client.Set(ctx, chunkKey(episodeID), data, chunkListTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateChunks drops the cached list after a replace.
func (rc *RedisCache) InvalidateChunks(ctx context.Context, episodeID int64) error {
	ctx, span := tracer.Start(ctx, "cache.invalidate_chunks",
		trace.WithAttributes(attribute.Int64("episode_id", episodeID)),
	)
	defer span.End()

	if err := rc.client.Del(ctx, chunkKey(episodeID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
