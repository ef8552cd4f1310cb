// Package cache implements domain.Cache against Redis, per spec.md §4.3
// and the cache keyspace in §6.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cdn-edge/internal/domain"
)

const (
	fieldMPUID        = "mpu_id"
	fieldPartNumber   = "part_number"
	fieldETag         = "etag"
	fieldUploaded     = "uploaded"
	fieldSize         = "size"
	fieldLastModified = "last_modified"
	fieldStatus       = "status"

	timeLayout = "2006-01-02 15:04:05.999999"
)

// RedisCache is a domain.Cache backed by a single Redis client.
type RedisCache struct {
	client *redis.Client
}

// New builds a RedisCache against host:port. The connection is not
// established until first use (go-redis dials lazily).
func New(host, port string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%s", host, port),
		}),
	}
}

// Ping verifies connectivity, used at startup to fail fast.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) GetUploadRecord(ctx context.Context, key string) (*domain.UploadRecord, bool, error) {
	res, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache: HGETALL %s: %w", key, err)
	}
	if len(res) == 0 {
		return nil, false, nil
	}

	rec := &domain.UploadRecord{
		MPUID:  res[fieldMPUID],
		ETag:   res[fieldETag],
		Status: domain.UploadStatus(res[fieldStatus]),
	}
	if v, ok := res[fieldPartNumber]; ok {
		fmt.Sscanf(v, "%d", &rec.PartNumber)
	}
	if v, ok := res[fieldUploaded]; ok {
		fmt.Sscanf(v, "%d", &rec.Uploaded)
	}
	if v, ok := res[fieldSize]; ok {
		fmt.Sscanf(v, "%d", &rec.Size)
	}
	if v, ok := res[fieldLastModified]; ok && v != "" {
		if t, err := time.Parse(timeLayout, v); err == nil {
			rec.LastModified = t
		}
	}

	return rec, true, nil
}

func (c *RedisCache) PutUploadRecord(ctx context.Context, key string, record domain.UploadRecord) error {
	fields := map[string]interface{}{
		fieldMPUID:        record.MPUID,
		fieldPartNumber:   record.PartNumber,
		fieldETag:         record.ETag,
		fieldUploaded:     record.Uploaded,
		fieldSize:         record.Size,
		fieldLastModified: record.LastModified.UTC().Format(timeLayout),
		fieldStatus:       string(record.Status),
	}
	if err := c.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("cache: HSET %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) DeleteKey(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: DEL %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache: SCAN %s: %w", pattern, err)
	}
	return keys, nil
}

func (c *RedisCache) IncrWithExpire(ctx context.Context, key string, ttlSeconds int) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Duration(ttlSeconds)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache: INCR/EXPIRE %s: %w", key, err)
	}
	return incr.Val(), nil
}
