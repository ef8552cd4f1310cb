package replication_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"cdn-edge/internal/domain"
)

// fakeClient is a minimal in-memory domain.S3Client shared by this
// package's tests, mirroring internal/multipart's test double.
type fakeClient struct {
	mu          sync.Mutex
	endpoint    string
	objects     map[string][]byte
	uploads     map[string]map[int][]byte
	nextMPU     int
	abortCalled int
}

func newFakeClient(endpoint string) *fakeClient {
	return &fakeClient{
		endpoint: endpoint,
		objects:  make(map[string][]byte),
		uploads:  make(map[string]map[int][]byte),
	}
}

func (f *fakeClient) Endpoint() string { return f.endpoint }

func (f *fakeClient) Presign(_ context.Context, bucket, object string) (string, error) {
	return fmt.Sprintf("https://%s/%s/%s", f.endpoint, bucket, object), nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) { return true, nil }

func (f *fakeClient) HeadRange(_ context.Context, bucket, object string, _, length int64) (*domain.HeadRangeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objKey(bucket, object)]
	if !ok {
		return nil, nil
	}
	return &domain.HeadRangeResult{ContentLength: length, TotalSize: int64(len(data)), ContentType: "application/octet-stream"}, nil
}

func (f *fakeClient) GetRange(_ context.Context, bucket, object string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[objKey(bucket, object)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, object)
	}
	end := offset + length
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (f *fakeClient) MultipartCreate(_ context.Context, _, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMPU++
	id := fmt.Sprintf("mpu-%d", f.nextMPU)
	f.uploads[id] = make(map[int][]byte)
	return id, nil
}

func (f *fakeClient) MultipartListParts(_ context.Context, _, _, mpuID string) ([]domain.PartDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[mpuID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown upload %s", domain.ErrS3, mpuID)
	}
	out := make([]domain.PartDescriptor, 0, len(up))
	for n := 1; n <= len(up); n++ {
		data, ok := up[n]
		if !ok {
			break
		}
		out = append(out, domain.PartDescriptor{PartNumber: n, ETag: fmt.Sprintf("etag-%d", n), Size: int64(len(data))})
	}
	return out, nil
}

func (f *fakeClient) MultipartUploadPart(_ context.Context, _, _, mpuID string, partNumber int, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[mpuID]
	if !ok {
		return "", fmt.Errorf("%w: unknown upload %s", domain.ErrS3, mpuID)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	up[partNumber] = cp
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeClient) MultipartComplete(_ context.Context, bucket, object, mpuID string, parts []domain.PartDescriptor) (*domain.MultipartCompleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[mpuID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown upload %s", domain.ErrS3, mpuID)
	}
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(up[p.PartNumber])
	}
	f.objects[objKey(bucket, object)] = buf.Bytes()
	delete(f.uploads, mpuID)
	return &domain.MultipartCompleteResult{Bucket: bucket, Key: object, ETag: "final-etag"}, nil
}

func (f *fakeClient) MultipartAbort(_ context.Context, _, _, mpuID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abortCalled++
	delete(f.uploads, mpuID)
	return nil
}

func (f *fakeClient) MultipartAbortAll(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = make(map[string]map[int][]byte)
	return nil
}

func (f *fakeClient) RemoveObject(_ context.Context, bucket, object string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objKey(bucket, object))
	return nil
}

func objKey(bucket, object string) string { return bucket + "/" + object }
