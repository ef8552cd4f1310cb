// Package replication copies objects from the origin to an edge node in
// the background, per spec.md §4.7. It implements
// domain.ReplicationEnqueuer so the placement engine can request a copy
// without importing this package back (design note §9: the original's
// helpers/scheduler mutual import collapses to one interface).
package replication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"cdn-edge/internal/domain"
	"cdn-edge/internal/multipart"
	"cdn-edge/internal/workerpool"
)

// staleAfter is the age past which an in-progress replication record is
// considered abandoned rather than merely slow, per spec.md §6's cache
// sweep invariants.
const staleAfter = 6 * time.Hour

// Scheduler enqueues and sweeps background object replication.
type Scheduler struct {
	cache    domain.Cache
	engine   *multipart.Engine
	clients  domain.S3ClientFactory
	bucket   string
	pool     *workerpool.Pool
	cron     *cron.Cron
	log      *zap.Logger
	activity *activityTracker
}

// New builds a Scheduler. clients constructs an S3Client for any node;
// pool bounds the number of concurrent replication copies.
func New(cache domain.Cache, engine *multipart.Engine, clients domain.S3ClientFactory, bucket string, pool *workerpool.Pool, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cache:    cache,
		engine:   engine,
		clients:  clients,
		bucket:   bucket,
		pool:     pool,
		cron:     cron.New(),
		log:      log,
		activity: newActivityTracker(),
	}
}

// Stats returns cumulative replication throughput since process start,
// for the debug activity endpoint.
func (s *Scheduler) Stats() Stats {
	return s.activity.stats()
}

// RecentActivity returns the most recently completed copies, oldest
// first, for the debug activity endpoint.
func (s *Scheduler) RecentActivity() []Event {
	return s.activity.recent()
}

// PoolStats reports the replication worker pool's saturation, for the
// debug activity endpoint's operator-facing backpressure signal.
func (s *Scheduler) PoolStats() workerpool.Stats {
	return s.pool.Stats()
}

// EnqueueCopy submits a background copy of objectName from origin to
// edge, unless one is already in flight. It implements
// domain.ReplicationEnqueuer.
func (s *Scheduler) EnqueueCopy(ctx context.Context, objectName string, origin, edge domain.Node) {
	key := domain.UploadKey(domain.CollectionCDN, objectName, "http://"+edge.Endpoint)

	rec, found, err := s.cache.GetUploadRecord(ctx, key)
	if err != nil {
		s.log.Error("checking in-flight replication", zap.String("object", objectName), zap.Error(err))
		return
	}
	if found && rec.Status == domain.StatusSchedulerInProgress {
		s.log.Info("replication already in progress, skipping", zap.String("object", objectName), zap.String("edge", edge.Endpoint))
		return
	}

	submitted := s.pool.Submit(func(taskCtx context.Context) error {
		return s.copy(taskCtx, objectName, origin, edge)
	})
	if !submitted {
		s.log.Warn("replication pool shut down, dropping copy", zap.String("object", objectName))
	}
}

func (s *Scheduler) copy(ctx context.Context, objectName string, origin, edge domain.Node) error {
	start := time.Now()
	originClient := s.clients(origin)
	edgeClient := s.clients(edge)

	head, err := originClient.HeadRange(ctx, s.bucket, objectName, 0, 1)
	if err != nil {
		s.activity.record(Event{Object: objectName, Edge: edge.Endpoint, Success: false, Duration: time.Since(start), Timestamp: start})
		return fmt.Errorf("replication: probing %s on origin: %w", objectName, err)
	}
	if head == nil {
		s.activity.record(Event{Object: objectName, Edge: edge.Endpoint, Success: false, Duration: time.Since(start), Timestamp: start})
		return fmt.Errorf("%w: %s missing on origin during replication", domain.ErrObjectNotFound, objectName)
	}

	key := domain.UploadKey(domain.CollectionCDN, objectName, "http://"+edge.Endpoint)
	if _, found, err := s.cache.GetUploadRecord(ctx, key); err == nil && !found {
		// Brand-new job for this (object, edge) pair: clear any orphaned
		// multipart uploads left by a previous crashed attempt before
		// starting one of our own. Resumed jobs skip this — aborting here
		// would destroy the very upload being resumed.
		if err := edgeClient.MultipartAbortAll(ctx, s.bucket); err != nil {
			s.log.Warn("clearing orphaned multipart uploads before fresh replication", zap.String("object", objectName), zap.Error(err))
		}
	}

	source := multipart.NewRangedGetSource(originClient, s.bucket, objectName, head.TotalSize)
	_, err = s.engine.Upload(ctx, edgeClient, s.bucket, objectName, head.ContentType,
		domain.CollectionCDN, domain.StatusSchedulerInProgress, head.TotalSize, source)
	if err != nil {
		s.activity.record(Event{Object: objectName, Edge: edge.Endpoint, Success: false, Bytes: head.TotalSize, Duration: time.Since(start), Timestamp: start})
		s.log.Error("replication copy failed", zap.String("object", objectName), zap.String("edge", edge.Endpoint), zap.Error(err))
		return err
	}

	s.activity.record(Event{Object: objectName, Edge: edge.Endpoint, Success: true, Bytes: head.TotalSize, Duration: time.Since(start), Timestamp: start})
	s.log.Info("replicated object", zap.String("object", objectName), zap.String("edge", edge.Endpoint))
	return nil
}

// StartSweeps registers the periodic finish/abort sweeps and starts the
// cron runner. finishEveryMinutes and abortEveryMinutes are the cron
// intervals in minutes, matching cron_settings in the source configuration.
func (s *Scheduler) StartSweeps(active domain.ActiveNodeSet, origin domain.Node, finishEveryMinutes, abortEveryMinutes int) error {
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", finishEveryMinutes), func() {
		s.FinishInProgress(context.Background(), active, origin)
	}); err != nil {
		return fmt.Errorf("replication: scheduling finish-in-progress sweep: %w", err)
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", abortEveryMinutes), func() {
		s.AbortStale(context.Background(), active)
	}); err != nil {
		return fmt.Errorf("replication: scheduling abort-stale sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and drains the worker pool.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.pool.Stop()
}

// FinishInProgress re-enqueues copies for edge records that are still
// in progress and were touched recently, per spec.md §4.7's periodic
// retry of interrupted replications. Only replication's own "cdn^"
// records are ever re-driven through EnqueueCopy; a client-side "api^"
// upload left in progress is the client's problem to resume, not the
// scheduler's.
func (s *Scheduler) FinishInProgress(ctx context.Context, active domain.ActiveNodeSet, origin domain.Node) {
	s.sweep(ctx, active, string(domain.CollectionCDN), func(node domain.Node, _ domain.Collection, objectName string, rec *domain.UploadRecord) bool {
		return time.Since(rec.LastModified) < staleAfter
	}, func(node domain.Node, _ domain.Collection, objectName string, rec *domain.UploadRecord) {
		// Submitted directly rather than through EnqueueCopy: its
		// single-flight check would skip exactly the scheduler_in_progress
		// records this sweep exists to resume.
		submitted := s.pool.Submit(func(taskCtx context.Context) error {
			return s.copy(taskCtx, objectName, origin, node)
		})
		if !submitted {
			s.log.Warn("replication pool shut down, dropping resumed copy", zap.String("object", objectName))
		}
	})
}

// AbortStale aborts and clears replication records older than
// staleAfter, treating them as permanently failed. Per spec.md §4.6,
// this sweeps every collection ("api^" client uploads as well as
// "cdn^" replications) on every active node, since a stale client
// upload left in_progress must also be reclaimed so a subsequent
// status check reports not-found rather than hanging forever.
func (s *Scheduler) AbortStale(ctx context.Context, active domain.ActiveNodeSet) {
	s.sweep(ctx, active, "*", func(node domain.Node, collection domain.Collection, objectName string, rec *domain.UploadRecord) bool {
		return time.Since(rec.LastModified) >= staleAfter
	}, func(node domain.Node, collection domain.Collection, objectName string, rec *domain.UploadRecord) {
		client := s.clients(node)
		if rec.MPUID != "" {
			if err := client.MultipartAbort(ctx, s.bucket, objectName, rec.MPUID); err != nil {
				s.log.Warn("aborting stale multipart upload", zap.String("object", objectName), zap.Error(err))
			}
		}
		key := domain.UploadKey(collection, objectName, "http://"+node.Endpoint)
		if err := s.cache.DeleteKey(ctx, key); err != nil {
			s.log.Warn("deleting stale replication record", zap.String("object", objectName), zap.Error(err))
		}
	})
}

// sweep scans every active node's cache keys matching
// "collectionGlob^*^http://{endpoint}", filters to in-progress
// records, and invokes apply for those match selects. collectionGlob
// is either a single collection ("api"/"cdn") or "*" for every
// collection.
func (s *Scheduler) sweep(
	ctx context.Context,
	active domain.ActiveNodeSet,
	collectionGlob string,
	match func(node domain.Node, collection domain.Collection, objectName string, rec *domain.UploadRecord) bool,
	apply func(node domain.Node, collection domain.Collection, objectName string, rec *domain.UploadRecord),
) {
	for _, node := range active {
		pattern := fmt.Sprintf("%s^*^http://%s", collectionGlob, node.Endpoint)
		keys, err := s.cache.ScanKeys(ctx, pattern)
		if err != nil {
			s.log.Error("scanning replication keys", zap.String("pattern", pattern), zap.Error(err))
			continue
		}

		for _, key := range keys {
			rec, found, err := s.cache.GetUploadRecord(ctx, key)
			if err != nil || !found {
				continue
			}
			if rec.Status != domain.StatusInProgress && rec.Status != domain.StatusSchedulerInProgress {
				continue
			}
			collection, objectName := collectionAndObjectFromKey(key)
			if !match(node, collection, objectName, rec) {
				continue
			}
			apply(node, collection, objectName, rec)
		}
	}
}

// collectionAndObjectFromKey splits a "collection^object^endpoint"
// cache key into its collection and object name, per spec.md §6's
// keyspace format.
func collectionAndObjectFromKey(key string) (domain.Collection, string) {
	first := strings.Index(key, "^")
	last := strings.LastIndex(key, "^")
	if first < 0 || last <= first {
		return "", key
	}
	return domain.Collection(key[:first]), key[first+1 : last]
}
