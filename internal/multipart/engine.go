// Package multipart drives resumable multipart uploads against any
// domain.S3Client, per spec.md §4.6. Progress is checkpointed into the
// cache after every part so a crashed or restarted caller can resume
// from the last part instead of re-uploading from scratch.
package multipart

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cdn-edge/internal/domain"
	"cdn-edge/internal/integrity"
)

// PartMinimum is the smallest allowed part size; the underlying object
// store rejects anything smaller on all parts but the last.
const PartMinimum = 5 * 1024 * 1024

// ChunkSource yields successive chunks of up to partSize bytes. A
// zero-length, nil-error return signals end of input.
type ChunkSource interface {
	Next(ctx context.Context, partSize int64) ([]byte, error)
}

// Engine uploads a single object via chunked parts, resuming from
// whatever parts are already recorded against the destination's upload
// ID.
type Engine struct {
	cache    domain.Cache
	partSize int64
	log      *zap.Logger
}

// New builds an Engine. partSize must be greater than PartMinimum, per
// the invariant enforced at config load (internal/config).
func New(cache domain.Cache, partSize int64, log *zap.Logger) *Engine {
	return &Engine{cache: cache, partSize: partSize, log: log}
}

// Upload drives client through create-or-resume, part upload, and
// completion. status is the UploadRecord status written while parts are
// in flight (callers distinguish a direct client upload from a
// scheduler-driven replication by passing domain.StatusInProgress or
// domain.StatusSchedulerInProgress).
func (e *Engine) Upload(
	ctx context.Context,
	client domain.S3Client,
	bucket, object, contentType string,
	collection domain.Collection,
	status domain.UploadStatus,
	totalSize int64,
	source ChunkSource,
) (*domain.MultipartCompleteResult, error) {
	key := domain.UploadKey(collection, object, "http://"+client.Endpoint())

	existing, found, err := e.cache.GetUploadRecord(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("multipart: reading upload record %s: %w", key, err)
	}
	if found && existing.Status == domain.StatusFinished {
		return nil, domain.ErrAlreadyUploaded
	}

	var mpuID string
	var parts []domain.PartDescriptor

	if found && existing.MPUID != "" {
		mpuID = existing.MPUID
		e.log.Info("resuming multipart upload", zap.String("object", object), zap.String("mpu_id", mpuID))
		parts, err = client.MultipartListParts(ctx, bucket, object, mpuID)
		if err != nil {
			return nil, fmt.Errorf("multipart: listing parts for resume of %s: %w", object, err)
		}
	} else {
		mpuID, err = client.MultipartCreate(ctx, bucket, object, contentType)
		if err != nil {
			return nil, fmt.Errorf("multipart: creating upload for %s: %w", object, err)
		}
		e.log.Info("started multipart upload", zap.String("object", object), zap.String("mpu_id", mpuID))
	}

	var uploaded int64
	partNumber := 1

	for {
		data, err := source.Next(ctx, e.partSize)
		if err != nil {
			return nil, fmt.Errorf("multipart: reading chunk %d of %s: %w", partNumber, object, err)
		}
		if len(data) == 0 {
			break
		}

		if partNumber <= len(parts) {
			existingPart := parts[partNumber-1]
			if existingPart.Size != int64(len(data)) {
				return nil, fmt.Errorf("%w: part %d of %s: local %d bytes, remote %d bytes",
					domain.ErrSizeMismatch, partNumber, object, len(data), existingPart.Size)
			}
		} else {
			etag, err := client.MultipartUploadPart(ctx, bucket, object, mpuID, partNumber, data)
			if err != nil {
				return nil, fmt.Errorf("multipart: uploading part %d of %s: %w", partNumber, object, err)
			}
			parts = append(parts, domain.PartDescriptor{
				PartNumber: partNumber,
				ETag:       etag,
				Size:       int64(len(data)),
			})

			rec := domain.UploadRecord{
				MPUID:        mpuID,
				PartNumber:   partNumber,
				ETag:         etag,
				Uploaded:     uploaded + int64(len(data)),
				Size:         totalSize,
				LastModified: time.Now().UTC(),
				Status:       status,
			}
			if err := e.cache.PutUploadRecord(ctx, key, rec); err != nil {
				return nil, fmt.Errorf("multipart: checkpointing part %d of %s: %w", partNumber, object, err)
			}
		}

		uploaded += int64(len(data))
		e.log.Debug("uploaded part",
			zap.String("object", object),
			zap.Int("part", partNumber),
			zap.Int64("uploaded_bytes", uploaded),
			zap.Int64("total_bytes", totalSize),
		)
		partNumber++
	}

	result, err := client.MultipartComplete(ctx, bucket, object, mpuID, parts)
	if err != nil {
		return nil, fmt.Errorf("multipart: completing upload of %s: %w", object, err)
	}

	e.verifyETag(object, client.Endpoint(), result.ETag, parts)

	finished := domain.UploadRecord{
		MPUID:        mpuID,
		PartNumber:   partNumber - 1,
		Uploaded:     uploaded,
		Size:         totalSize,
		LastModified: time.Now().UTC(),
		Status:       domain.StatusFinished,
	}
	if err := e.cache.PutUploadRecord(ctx, key, finished); err != nil {
		return nil, fmt.Errorf("multipart: recording completion of %s: %w", object, err)
	}

	e.log.Info("completed multipart upload", zap.String("object", object), zap.Int64("bytes", uploaded))
	return result, nil
}

// verifyETag cross-checks the provider's completion ETag against the
// ETag a correct multipart assembly should have produced, logging a
// warning on mismatch. Single-part objects, Backblaze B2 endpoints, and
// uploads whose part ETags are not hex MD5s skip verification rather
// than false-alarming; every other provider is verified.
func (e *Engine) verifyETag(object, endpoint, gotETag string, parts []domain.PartDescriptor) {
	if !integrity.IsMultipartETag(gotETag) {
		return
	}

	if integrity.DetectProvider(endpoint) == integrity.ProviderBackblazeB2 {
		// Backblaze B2 composes multipart ETags from SHA1, not MD5; skip
		// rather than compare against the wrong algorithm.
		return
	}

	partETags := make([]string, len(parts))
	for i, p := range parts {
		partETags[i] = p.ETag
	}

	want, err := integrity.CalculateMultipartETag(partETags)
	if err != nil {
		e.log.Debug("skipping etag verification", zap.String("object", object), zap.Error(err))
		return
	}

	if integrity.CleanETag(gotETag) != want {
		e.log.Warn("multipart etag mismatch",
			zap.String("object", object),
			zap.String("got", integrity.CleanETag(gotETag)),
			zap.String("want", want),
		)
	}
}
