package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/blob"
	"github.com/awsl-dev/vidstream/internal/catalog"
	"github.com/awsl-dev/vidstream/internal/config"
	"github.com/awsl-dev/vidstream/internal/handlers"
	"github.com/awsl-dev/vidstream/internal/logging"
	"github.com/awsl-dev/vidstream/internal/tracing"
	"github.com/awsl-dev/vidstream/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.ServiceName, cfg.Debug)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting service",
		zap.String("port", cfg.ServicePort),
		zap.String("blob_backend", cfg.BlobBackend),
		zap.Int("chunk_size_mb", cfg.ChunkSizeMB))

	shutdownTracer, err := tracing.Init(cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	var store blob.Store
	switch cfg.BlobBackend {
	case config.BackendMinio:
		store, err = blob.NewMinioStore(
			cfg.MinIOEndpoint,
			cfg.MinIOAccessKey,
			cfg.MinIOSecretKey,
			cfg.MinIOBucketName,
			cfg.MinIOUseSSL,
			logger,
		)
		if err != nil {
			logger.Fatal("initialize minio store", zap.Error(err))
		}
	default:
		store = blob.NewGateway(cfg.GatewayBaseURL, cfg.GatewayAPIToken, cfg.GatewayChatID, logger)
	}

	cat, err := catalog.New(cfg.GetDSN(), logger)
	if err != nil {
		logger.Fatal("initialize catalog", zap.Error(err))
	}
	defer cat.Close()

	if err := cat.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	cache, err := catalog.NewRedisCache(cfg.GetRedisAddr(), cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatal("initialize redis cache", zap.Error(err))
	}
	defer cache.Close()

	pipeline := upload.New(store, cat, cfg.ChunkSizeBytes(), cfg.ReadIncrementBytes(), logger)
	streamHandler := handlers.NewStreamHandler(store, cat, cache, logger)
	uploadHandler := handlers.NewUploadHandler(pipeline, cat, cache, logger)

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/api/stream/{episode_id}",
		otelhttp.NewHandler(http.HandlerFunc(streamHandler.ServeEpisode), "GET /api/stream/{episode_id}")).Methods("GET")
	router.Handle("/api/stream/{episode_id}/url",
		otelhttp.NewHandler(http.HandlerFunc(streamHandler.StreamURL), "GET /api/stream/{episode_id}/url")).Methods("GET")
	router.Handle("/api/stream-direct",
		otelhttp.NewHandler(http.HandlerFunc(streamHandler.ServeDirect), "GET /api/stream-direct")).Methods("GET")
	router.Handle("/api/cover/{file_id}",
		otelhttp.NewHandler(http.HandlerFunc(streamHandler.ServeCover), "GET /api/cover/{file_id}")).Methods("GET")
	router.Handle("/admin-api/episodes/{episode_id}/upload",
		otelhttp.NewHandler(http.HandlerFunc(uploadHandler.ServeUpload), "POST /admin-api/episodes/{episode_id}/upload")).Methods("POST")
	router.Handle("/admin-api/episodes/{episode_id}/finalize",
		otelhttp.NewHandler(http.HandlerFunc(uploadHandler.ServeFinalize), "POST /admin-api/episodes/{episode_id}/finalize")).Methods("POST")

	srv := &http.Server{
		Addr:        ":" + cfg.ServicePort,
		Handler:     router,
		ReadTimeout: 30 * time.Minute, // large uploads stream through the request body
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
