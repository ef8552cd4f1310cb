package domain

import "context"

// Cache is the key/value capability set the core needs: per-key hash
// fields for UploadRecord, TTL for rate-limit buckets, a pipelined
// counter for the rate limiter, and pattern scanning for the scheduler's
// reconciliation sweeps.
type Cache interface {
	// GetUploadRecord returns (nil, false) if the key has no record.
	GetUploadRecord(ctx context.Context, key string) (*UploadRecord, bool, error)

	// PutUploadRecord writes (overwrites) the record at key with no TTL.
	PutUploadRecord(ctx context.Context, key string, record UploadRecord) error

	// DeleteKey removes a cache entry; deleting a missing key is not an error.
	DeleteKey(ctx context.Context, key string) error

	// ScanKeys returns every key matching a glob-style pattern (Redis
	// SCAN/MATCH semantics: '*' and '?' wildcards).
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// IncrWithExpire atomically increments key and resets its TTL in the
	// same round trip, returning the post-increment value. Used by the
	// rate limiter's leaky bucket.
	IncrWithExpire(ctx context.Context, key string, ttlSeconds int) (int64, error)
}
