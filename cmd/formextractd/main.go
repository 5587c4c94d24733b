package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/form-extractor/internal/async"
	"github.com/joseph-ayodele/form-extractor/internal/common"
	"github.com/joseph-ayodele/form-extractor/internal/core"
	"github.com/joseph-ayodele/form-extractor/internal/ingest"
	repo "github.com/joseph-ayodele/form-extractor/internal/repository"
	svc "github.com/joseph-ayodele/form-extractor/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("config.load.failed", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(2)
	}

	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.ConfigFrom(cfg.Store), logger)
	if err != nil {
		logger.Error("db.open.failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("db.ping.failed", "error", err)
		os.Exit(1)
	}
	sessions := repo.NewSessionRepository(db, logger)

	processor, err := core.NewFromConfig(cfg, sessions, logger)
	if err != nil {
		logger.Error("processor.wire.failed", "error", err)
		os.Exit(1)
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(2),
		async.WithQueueSize(64),
		async.WithProcessTimeout(30*time.Minute),
	)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("grpc.listen.failed", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(svc.LoggingInterceptor(logger)))
	svc.RegisterReviewServer(grpcServer, svc.NewReviewService(processor, sessions, queue, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(svc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	if cfg.Inbox.Dir != "" {
		ingestor := ingest.NewIngestor(processor, queue, logger)
		go func() {
			err := ingestor.Watch(ctx, ingest.WatchConfig{
				Roots:       []string{cfg.Inbox.Dir},
				SkipHidden:  true,
				InitialScan: true,
				Debounce:    cfg.Inbox.Debounce,
			})
			if err != nil && ctx.Err() == nil {
				logger.Error("inbox.watch.failed", "dir", cfg.Inbox.Dir, "error", err)
			}
		}()
	}

	logger.Info("formextractd.listening", "addr", addr, "provider", cfg.LLM.Provider, "db_dialect", db.Dialect)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc.serve.failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("formextractd.stopping")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	queue.Shutdown(shutdownCtx)
}
