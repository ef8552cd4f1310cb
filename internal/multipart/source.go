package multipart

import (
	"context"
	"fmt"
	"io"

	"cdn-edge/internal/domain"
	"cdn-edge/internal/structures"
)

// chunkPool is shared by every ChunkSource so concurrent uploads (client
// ingests and scheduler-driven replications alike) reuse the same
// size-classed part buffers instead of each allocating its own.
var chunkPool = structures.NewSlicePool()

// ClientStreamSource reads parts directly from an HTTP request body, for
// the collection-"api" path where a client streams the object to the
// origin.
type ClientStreamSource struct {
	r       io.Reader
	lastBuf []byte
}

// NewClientStreamSource wraps r as a ChunkSource.
func NewClientStreamSource(r io.Reader) *ClientStreamSource {
	return &ClientStreamSource{r: r}
}

func (s *ClientStreamSource) Next(_ context.Context, partSize int64) ([]byte, error) {
	if s.lastBuf != nil {
		chunkPool.PutSlice(s.lastBuf)
		s.lastBuf = nil
	}

	buf := chunkPool.GetSlice(int(partSize))
	n, err := io.ReadFull(s.r, buf)
	if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
		chunkPool.PutSlice(buf)
		return nil, nil
	}
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		chunkPool.PutSlice(buf)
		return nil, err
	}
	s.lastBuf = buf
	return buf[:n], nil
}

// RangedGetSource reads parts via ranged GET against an origin
// S3Client, for the collection-"cdn" replication path where no local
// file exists and the edge pulls straight from the origin.
type RangedGetSource struct {
	origin  domain.S3Client
	bucket  string
	object  string
	total   int64
	offset  int64
	lastBuf []byte
}

// NewRangedGetSource builds a ChunkSource that reads object from
// origin's bucket, stopping once total bytes have been read.
func NewRangedGetSource(origin domain.S3Client, bucket, object string, total int64) *RangedGetSource {
	return &RangedGetSource{origin: origin, bucket: bucket, object: object, total: total}
}

func (s *RangedGetSource) Next(ctx context.Context, partSize int64) ([]byte, error) {
	if s.lastBuf != nil {
		chunkPool.PutSlice(s.lastBuf)
		s.lastBuf = nil
	}

	if s.offset >= s.total {
		return nil, nil
	}

	length := partSize
	if s.offset+length > s.total {
		length = s.total - s.offset
	}

	body, err := s.origin.GetRange(ctx, s.bucket, s.object, s.offset, length)
	if err != nil {
		return nil, fmt.Errorf("multipart: ranged read of %s at offset %d: %w", s.object, s.offset, err)
	}
	defer body.Close()

	buf := chunkPool.GetSlice(int(length))
	n, err := io.ReadFull(body, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		chunkPool.PutSlice(buf)
		return nil, fmt.Errorf("multipart: draining ranged read of %s at offset %d: %w", s.object, s.offset, err)
	}

	s.offset += int64(n)
	s.lastBuf = buf
	return buf[:n], nil
}
