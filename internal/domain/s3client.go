package domain

import (
	"context"
	"io"
)

// HeadRangeResult is the metadata returned by a ranged HEAD/GET probe.
// TotalSize is parsed from the response's content-range suffix, e.g.
// "bytes 0-0/104857600" -> 104857600.
type HeadRangeResult struct {
	ContentLength int64
	ContentRange  string
	ContentType   string
	TotalSize     int64
}

// MultipartCompleteResult mirrors the result of S3 CompleteMultipartUpload.
type MultipartCompleteResult struct {
	Bucket   string
	Key      string
	Location string
	ETag     string
}

// S3Client is the capability set the core needs from an S3-compatible
// object store. Every method fails with an error wrapping ErrS3 carrying
// the underlying reason. Two concrete backings (origin, edge) share this
// interface; they differ only in the endpoint/credentials they were
// constructed with.
type S3Client interface {
	Endpoint() string

	// Presign returns a time-limited (1 hour) GET URL for the object.
	Presign(ctx context.Context, bucket, object string) (string, error)

	BucketExists(ctx context.Context, bucket string) (bool, error)

	// HeadRange probes existence and learns size via a ranged GET of
	// [offset, offset+length-1]. Returns (nil, nil) when the object does
	// not exist, matching the probe semantics in PlacementEngine.
	HeadRange(ctx context.Context, bucket, object string, offset, length int64) (*HeadRangeResult, error)

	// GetRange returns a byte stream for [offset, offset+length-1].
	GetRange(ctx context.Context, bucket, object string, offset, length int64) (io.ReadCloser, error)

	MultipartCreate(ctx context.Context, bucket, object, contentType string) (string, error)
	MultipartListParts(ctx context.Context, bucket, object, mpuID string) ([]PartDescriptor, error)
	MultipartUploadPart(ctx context.Context, bucket, object, mpuID string, partNumber int, data []byte) (etag string, err error)
	MultipartComplete(ctx context.Context, bucket, object, mpuID string, parts []PartDescriptor) (*MultipartCompleteResult, error)
	MultipartAbort(ctx context.Context, bucket, object, mpuID string) error
	MultipartAbortAll(ctx context.Context, bucket string) error

	RemoveObject(ctx context.Context, bucket, object string) error
}

// S3ClientFactory builds an S3Client bound to a specific node's
// endpoint and credentials. Kept as a factory (rather than a method on
// Node) so tests can substitute a fake without touching domain.Node.
type S3ClientFactory func(node Node) S3Client
