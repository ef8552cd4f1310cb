package multipart_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cdn-edge/internal/cache"
	"cdn-edge/internal/domain"
	"cdn-edge/internal/multipart"
)

const testPartSize = multipart.PartMinimum + 1

func TestUpload_SinglePartRoundTrip(t *testing.T) {
	client := newFakeClient("edge1")
	engine := multipart.New(cache.NewMemory(), testPartSize, zap.NewNop())

	payload := []byte("hello world")
	source := multipart.NewClientStreamSource(bytes.NewReader(payload))

	result, err := engine.Upload(context.Background(), client, "bucket", "movie.mp4", "video/mp4",
		domain.CollectionAPI, domain.StatusInProgress, int64(len(payload)), source)
	require.NoError(t, err)
	assert.Equal(t, "final-etag", result.ETag)

	stored, ok := client.objects[objKey("bucket", "movie.mp4")]
	require.True(t, ok)
	assert.Equal(t, payload, stored)
}

func TestUpload_ExactPartBoundary(t *testing.T) {
	client := newFakeClient("edge1")
	engine := multipart.New(cache.NewMemory(), testPartSize, zap.NewNop())

	payload := bytes.Repeat([]byte{'x'}, int(testPartSize*2))
	source := multipart.NewClientStreamSource(bytes.NewReader(payload))

	_, err := engine.Upload(context.Background(), client, "bucket", "big.bin", "application/octet-stream",
		domain.CollectionAPI, domain.StatusInProgress, int64(len(payload)), source)
	require.NoError(t, err)

	stored := client.objects[objKey("bucket", "big.bin")]
	assert.Equal(t, payload, stored)
}

func TestUpload_AlreadyFinishedIsRejected(t *testing.T) {
	mem := cache.NewMemory()
	client := newFakeClient("edge1")
	engine := multipart.New(mem, testPartSize, zap.NewNop())

	key := domain.UploadKey(domain.CollectionAPI, "done.bin", "http://edge1")
	require.NoError(t, mem.PutUploadRecord(context.Background(), key, domain.UploadRecord{Status: domain.StatusFinished}))

	source := multipart.NewClientStreamSource(strings.NewReader("data"))
	_, err := engine.Upload(context.Background(), client, "bucket", "done.bin", "text/plain",
		domain.CollectionAPI, domain.StatusInProgress, 4, source)
	assert.ErrorIs(t, err, domain.ErrAlreadyUploaded)
}

func TestUpload_ResumeSkipsAlreadyUploadedParts(t *testing.T) {
	mem := cache.NewMemory()
	client := newFakeClient("edge1")
	engine := multipart.New(mem, testPartSize, zap.NewNop())

	part1 := bytes.Repeat([]byte{'a'}, int(testPartSize))
	part2 := []byte("tail")
	full := append(append([]byte{}, part1...), part2...)

	mpuID, err := client.MultipartCreate(context.Background(), "bucket", "resume.bin", "application/octet-stream")
	require.NoError(t, err)
	_, err = client.MultipartUploadPart(context.Background(), "bucket", "resume.bin", mpuID, 1, part1)
	require.NoError(t, err)

	key := domain.UploadKey(domain.CollectionCDN, "resume.bin", "http://edge1")
	require.NoError(t, mem.PutUploadRecord(context.Background(), key, domain.UploadRecord{
		MPUID: mpuID, PartNumber: 1, Status: domain.StatusSchedulerInProgress,
	}))

	source := multipart.NewClientStreamSource(bytes.NewReader(full))
	result, err := engine.Upload(context.Background(), client, "bucket", "resume.bin", "application/octet-stream",
		domain.CollectionCDN, domain.StatusSchedulerInProgress, int64(len(full)), source)
	require.NoError(t, err)
	assert.Equal(t, "final-etag", result.ETag)
	assert.Equal(t, full, client.objects[objKey("bucket", "resume.bin")])
}

func TestUpload_ResumeSizeMismatchIsFatal(t *testing.T) {
	mem := cache.NewMemory()
	client := newFakeClient("edge1")
	engine := multipart.New(mem, testPartSize, zap.NewNop())

	remotePart := bytes.Repeat([]byte{'a'}, int(testPartSize))
	mpuID, err := client.MultipartCreate(context.Background(), "bucket", "mismatch.bin", "application/octet-stream")
	require.NoError(t, err)
	_, err = client.MultipartUploadPart(context.Background(), "bucket", "mismatch.bin", mpuID, 1, remotePart)
	require.NoError(t, err)

	key := domain.UploadKey(domain.CollectionCDN, "mismatch.bin", "http://edge1")
	require.NoError(t, mem.PutUploadRecord(context.Background(), key, domain.UploadRecord{
		MPUID: mpuID, PartNumber: 1, Status: domain.StatusSchedulerInProgress,
	}))

	localPart := bytes.Repeat([]byte{'b'}, int(testPartSize)-1)
	source := multipart.NewClientStreamSource(bytes.NewReader(localPart))

	_, err = engine.Upload(context.Background(), client, "bucket", "mismatch.bin", "application/octet-stream",
		domain.CollectionCDN, domain.StatusSchedulerInProgress, int64(len(localPart)), source)
	assert.ErrorIs(t, err, domain.ErrSizeMismatch)
}
