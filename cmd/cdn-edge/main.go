package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cdn-edge/internal/cache"
	"cdn-edge/internal/config"
	"cdn-edge/internal/domain"
	"cdn-edge/internal/geo"
	"cdn-edge/internal/httpapi"
	"cdn-edge/internal/logging"
	"cdn-edge/internal/multipart"
	"cdn-edge/internal/nodes"
	"cdn-edge/internal/placement"
	"cdn-edge/internal/ratelimit"
	"cdn-edge/internal/replication"
	"cdn-edge/internal/s3client"
	"cdn-edge/internal/workerpool"
)

const (
	replicationWorkers      = 4
	finishInProgressMinutes = 5
	abortStaleMinutes       = 15
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	registry, err := nodes.Load(cfg.NodesFile)
	if err != nil {
		log.Fatal("loading node registry", zap.Error(err))
	}

	redisCache := cache.New(cfg.RedisHost, cfg.RedisPort)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisCache.Ping(ctx); err != nil {
		log.Fatal("connecting to redis", zap.Error(err))
	}
	cancel()
	defer redisCache.Close()

	factory := buildClientFactory(cfg.BucketName, log)

	engine := multipart.New(redisCache, cfg.UploadPartSize, log)
	geoRouter := geo.NewRouter(cfg.IPAPIKey, log)

	pool := workerpool.New(context.Background(), replicationWorkers)
	scheduler := replication.New(redisCache, engine, factory, cfg.BucketName, pool, log)

	placementEngine := placement.New(factory, cfg.BucketName, scheduler, log)

	origin, err := registry.Origin()
	if err != nil {
		log.Fatal("resolving origin at startup", zap.Error(err))
	}
	if err := scheduler.StartSweeps(registry.ActiveNodes(), origin, finishInProgressMinutes, abortStaleMinutes); err != nil {
		log.Fatal("starting replication sweeps", zap.Error(err))
	}

	limiter := ratelimit.New(redisCache, cfg.IsRateLimit, int64(cfg.RequestLimitPerMinute))

	handlers := &httpapi.Handlers{
		Registry:   registry,
		Geo:        geoRouter,
		Engine:     placementEngine,
		Upload:     engine,
		Replicator: scheduler,
		Clients:    factory,
		Cache:      redisCache,
		Bucket:     cfg.BucketName,
		PartSize:   cfg.UploadPartSize,
		Log:        log,
	}

	router := httpapi.NewRouter(handlers, limiter, log)

	srv := &http.Server{
		Addr:         cfg.HostCDN + ":" + cfg.PortCDN,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
	}

	go func() {
		log.Info("starting http server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", zap.Error(err))
	}
	scheduler.Stop()
}

// buildClientFactory returns a domain.S3ClientFactory that builds a
// fresh s3client.Client per call. Construction only loads static
// credentials, so the cost is negligible compared to the network calls
// each client makes.
func buildClientFactory(bucket string, log *zap.Logger) domain.S3ClientFactory {
	return func(node domain.Node) domain.S3Client {
		c, err := s3client.New(context.Background(), node, bucket)
		if err != nil {
			log.Error("building s3 client", zap.String("endpoint", node.Endpoint), zap.Error(err))
			return nil
		}
		return c
	}
}
