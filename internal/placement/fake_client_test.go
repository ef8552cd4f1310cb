package placement_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"cdn-edge/internal/domain"
)

// fakeClient is a minimal in-memory domain.S3Client shared by this
// package's tests.
type fakeClient struct {
	mu       sync.Mutex
	endpoint string
	objects  map[string][]byte
}

func newFakeClient(endpoint string) *fakeClient {
	return &fakeClient{endpoint: endpoint, objects: make(map[string][]byte)}
}

func (f *fakeClient) put(bucket, object string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objKey(bucket, object)] = data
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
	return &domain.HeadRangeResult{ContentLength: length, TotalSize: int64(len(data))}, nil
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
	return "", fmt.Errorf("not implemented")
}
func (f *fakeClient) MultipartListParts(_ context.Context, _, _, _ string) ([]domain.PartDescriptor, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) MultipartUploadPart(_ context.Context, _, _, _ string, _ int, _ []byte) (string, error) {
	return "", fmt.Errorf("not implemented")
}
func (f *fakeClient) MultipartComplete(_ context.Context, _, _, _ string, _ []domain.PartDescriptor) (*domain.MultipartCompleteResult, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeClient) MultipartAbort(_ context.Context, _, _, _ string) error { return nil }
func (f *fakeClient) MultipartAbortAll(_ context.Context, _ string) error   { return nil }

func (f *fakeClient) RemoveObject(_ context.Context, bucket, object string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, objKey(bucket, object))
	return nil
}

func objKey(bucket, object string) string { return bucket + "/" + object }

// fakeEnqueuer records EnqueueCopy calls without doing any work.
type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEnqueuer) EnqueueCopy(_ context.Context, objectName string, _, edge domain.Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, objectName+"->"+edge.Endpoint)
}
