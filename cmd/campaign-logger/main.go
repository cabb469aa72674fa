package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/funnelworks/campaign-logger/internal/config"
	"github.com/funnelworks/campaign-logger/internal/event"
	"github.com/funnelworks/campaign-logger/internal/geo"
	"github.com/funnelworks/campaign-logger/pkg/blob"
	"github.com/funnelworks/campaign-logger/pkg/kafka"
	"github.com/funnelworks/campaign-logger/pkg/logger"
	"github.com/funnelworks/campaign-logger/pkg/postgres"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log = logger.WithService(log, "campaign-logger")
	log.Info("Starting campaign logger",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("storage_backend", cfg.StorageBackend),
	)

	store, cleanup, err := buildStore(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer cleanup()

	lookup, closeGeo, err := buildLookup(cfg, log)
	if err != nil {
		log.Fatal("Failed to open GeoIP database", zap.Error(err))
	}
	defer closeGeo()

	var publisher event.Publisher
	if cfg.Kafka.MirrorEnabled() {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:         cfg.Kafka.Brokers,
			Topic:           cfg.Kafka.Topic,
			Retries:         cfg.Kafka.ProducerRetries,
			Timeout:         cfg.Kafka.ProducerTimeout,
			RequiredAcks:    cfg.Kafka.RequiredAcks,
			Compression:     cfg.Kafka.CompressionType,
			MaxMessageBytes: cfg.Kafka.MaxMessageBytes,
		}, log)
		if err != nil {
			log.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		defer producer.Close()
		publisher = producer
	}

	service := event.NewService(store, publisher, log)
	resolver := geo.NewResolver(lookup)
	handler := event.NewHandler(service, resolver, log, cfg.MaxBodyBytes)

	mux := http.NewServeMux()
	handler.Register(mux, cfg.StaticDir)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error running HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("Shutdown timed out, forcing stop", zap.Error(err))
	}

	log.Info("Campaign logger stopped")
}

func buildStore(cfg *config.Config, log *zap.Logger) (event.Store, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendFile:
		store, err := event.NewFileStore(cfg.DataDir, log)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.BackendBlob:
		client := blob.NewClient(blob.Config{
			BaseURL: cfg.Blob.BaseURL,
			Token:   cfg.Blob.Token,
			Timeout: cfg.Blob.Timeout,
		}, log)
		return event.NewBlobStore(client, log), func() {}, nil

	case config.BackendPostgres:
		db, err := postgres.New(postgres.Config{
			DSN:             cfg.Postgres.PostgresDSN(),
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, nil, err
		}

		repo := event.NewRepository(db, log)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		return repo, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func buildLookup(cfg *config.Config, log *zap.Logger) (geo.Lookup, func(), error) {
	if cfg.GeoIPDBPath == "" {
		log.Info("No GeoIP database configured, geo fields will be empty")
		return geo.Nop{}, func() {}, nil
	}

	mm, err := geo.OpenMaxMind(cfg.GeoIPDBPath, log)
	if err != nil {
		return nil, nil, err
	}
	return mm, func() { mm.Close() }, nil
}
