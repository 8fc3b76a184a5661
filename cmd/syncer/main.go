package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"

	"github.com/indexflow-go/internal/syncer/bus"
	"github.com/indexflow-go/internal/syncer/coalescer"
	"github.com/indexflow-go/internal/syncer/deadletter"
	"github.com/indexflow-go/internal/syncer/expander"
	"github.com/indexflow-go/internal/syncer/handlers"
	"github.com/indexflow-go/internal/syncer/rebuild"
	"github.com/indexflow-go/internal/syncer/registry"
	"github.com/indexflow-go/internal/syncer/server"
	"github.com/indexflow-go/internal/syncer/service"
	"github.com/indexflow-go/internal/syncer/synchronizer"
	"github.com/indexflow-go/pkg/cache"
	"github.com/indexflow-go/pkg/config"
	"github.com/indexflow-go/pkg/database"
	"github.com/indexflow-go/pkg/logger"
	"github.com/indexflow-go/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("syncer")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger.ToLoggerConfig())

	tel, err := telemetry.New(telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		JaegerURL:    cfg.Telemetry.JaegerURL,
		ServiceName:  cfg.Telemetry.ServiceName,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		log.Fatal("Failed to initialize telemetry", "error", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	poolCtx, stopPoolStats := context.WithCancel(context.Background())
	go db.ReportPoolStats(poolCtx, 15*time.Second)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		log.Fatal("Failed to create Elasticsearch client", "error", err)
	}

	schema := buildSchema()
	source := registry.NewGormSource(db.DB, schema)
	relCache := registry.NewCachedRelations(
		source,
		cache.NewRedisCache(redisClient, "indexflow"),
		5*time.Minute,
		log,
	)
	reg := registry.NewElasticRegistry(esClient, relCache, cfg.Syncer.RateLimitRPS, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reg.EnsureIndices(ctx, schema); err != nil {
		cancel()
		log.Fatal("Failed to ensure indices", "error", err)
	}
	cancel()

	letters := deadletter.NewRedisStore(redisClient, cfg.DeadLetter.RedisKey, cfg.DeadLetter.MaxSize, log)
	sinks := deadletter.Fanout{deadletter.NewLogSink(log), letters}
	if cfg.DeadLetter.S3Bucket != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.DeadLetter.S3Region)})
		if err != nil {
			log.Fatal("Failed to create AWS session", "error", err)
		}
		sinks = append(sinks, deadletter.NewS3Archiver(s3.New(sess), cfg.DeadLetter.S3Bucket, log))
	}

	sync := synchronizer.New(synchronizer.Config{
		WorkerPoolSize:   cfg.Syncer.WorkerPoolSize,
		MaxRetryAttempts: cfg.Syncer.MaxRetryAttempts,
		BackoffBase:      cfg.Syncer.BackoffBase(),
	}, registry.NewApplier(reg, source), sinks, log)

	eventBus := bus.NewKafkaBus(cfg.Kafka, log)

	svc := service.New(service.Options{
		Bus: eventBus,
		Coalescer: coalescer.New(coalescer.Config{
			FlushInterval: cfg.Syncer.FlushInterval(),
			MaxBatchSize:  cfg.Syncer.MaxBatchSize,
		}, log),
		Expander:      expander.New(relCache, cfg.Syncer.MaxFanoutDepth, log),
		Synchronizer:  sync,
		RelationCache: relCache,
		Telemetry:     tel,
		Logger:        log,
	})
	svc.Start()

	rebuilder := rebuild.New(source, svc, schema, log)
	if err := rebuilder.Schedule(cfg.Syncer.RebuildSchedule); err != nil {
		log.Fatal("Invalid rebuild schedule", "error", err)
	}

	h := handlers.New(svc, letters, rebuilder, log)
	srv := server.New(cfg, h, eventBus, tel, log)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Admin server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down syncer...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Admin server forced to shutdown", "error", err)
	}

	rebuilder.Stop()

	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error("Sync service forced to shutdown", "error", err)
	}

	if err := eventBus.Close(); err != nil {
		log.Error("Failed to close event bus", "error", err)
	}
	if err := tel.Close(); err != nil {
		log.Error("Failed to close telemetry", "error", err)
	}
	stopPoolStats()
	if err := redisClient.Close(); err != nil {
		log.Error("Failed to close Redis client", "error", err)
	}
	if err := db.Close(); err != nil {
		log.Error("Failed to close database", "error", err)
	}

	log.Info("Syncer exited")
}
