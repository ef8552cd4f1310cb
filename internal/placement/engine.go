// Package placement resolves where to serve an object from and deletes
// it across every node, per spec.md §4.5. It is the direct analogue of
// the original's films.py get_client_data/process_deleting_object pair.
package placement

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cdn-edge/internal/domain"
)

// Resolution describes where a client should fetch an object from.
type Resolution struct {
	URL      string
	Endpoint string
}

// Engine resolves object locations and coordinates cross-node deletion.
type Engine struct {
	clients    domain.S3ClientFactory
	bucket     string
	replicator domain.ReplicationEnqueuer
	log        *zap.Logger
}

// New builds an Engine. replicator is nil-safe: when nil, Resolve skips
// background replication (used by tests that only care about presign
// behavior).
func New(clients domain.S3ClientFactory, bucket string, replicator domain.ReplicationEnqueuer, log *zap.Logger) *Engine {
	return &Engine{clients: clients, bucket: bucket, replicator: replicator, log: log}
}

// Resolve returns a presigned URL for objectName, preferring closest
// over origin. If the object is missing on closest but present on
// origin, it is served from origin and a background copy to closest is
// enqueued. If it is missing everywhere, ErrObjectNotFound is returned.
func (e *Engine) Resolve(ctx context.Context, closest, origin domain.Node, objectName string) (*Resolution, error) {
	closestClient := e.clients(closest)

	if exists, err := e.objectExists(ctx, closestClient, objectName); err != nil {
		return nil, err
	} else if exists {
		url, err := closestClient.Presign(ctx, e.bucket, objectName)
		if err != nil {
			return nil, err
		}
		return &Resolution{URL: url, Endpoint: closestClient.Endpoint()}, nil
	}

	if closest.IsOrigin() {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, objectName)
	}

	originClient := e.clients(origin)
	exists, err := e.objectExists(ctx, originClient, objectName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrObjectNotFound, objectName)
	}

	if e.replicator != nil {
		e.replicator.EnqueueCopy(ctx, objectName, origin, closest)
	}

	url, err := originClient.Presign(ctx, e.bucket, objectName)
	if err != nil {
		return nil, err
	}
	return &Resolution{URL: url, Endpoint: originClient.Endpoint()}, nil
}

// Delete removes objectName from every active node it exists on,
// clearing both the api and cdn cache records for each. It returns the
// endpoints the object was removed from, or ErrObjectNotFound if it
// existed nowhere.
func (e *Engine) Delete(ctx context.Context, active domain.ActiveNodeSet, cache domain.Cache, objectName string) ([]string, error) {
	var removedFrom []string

	for _, node := range active {
		client := e.clients(node)

		exists, err := e.objectExists(ctx, client, objectName)
		if err != nil {
			e.log.Warn("checking object before delete", zap.String("object", objectName), zap.String("endpoint", node.Endpoint), zap.Error(err))
			continue
		}
		if !exists {
			continue
		}

		if err := client.RemoveObject(ctx, e.bucket, objectName); err != nil {
			return nil, fmt.Errorf("placement: removing %s from %s: %w", objectName, node.Endpoint, err)
		}

		endpoint := "http://" + node.Endpoint
		apiKey := domain.UploadKey(domain.CollectionAPI, objectName, endpoint)
		cdnKey := domain.UploadKey(domain.CollectionCDN, objectName, endpoint)
		_ = cache.DeleteKey(ctx, apiKey)
		_ = cache.DeleteKey(ctx, cdnKey)

		removedFrom = append(removedFrom, endpoint)
	}

	if len(removedFrom) == 0 {
		return nil, fmt.Errorf("%w: %s on any node", domain.ErrObjectNotFound, objectName)
	}
	return removedFrom, nil
}

func (e *Engine) objectExists(ctx context.Context, client domain.S3Client, objectName string) (bool, error) {
	head, err := client.HeadRange(ctx, e.bucket, objectName, 0, 1)
	if err != nil {
		return false, fmt.Errorf("%w: probing %s: %v", domain.ErrS3, objectName, err)
	}
	return head != nil, nil
}
