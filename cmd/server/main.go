package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/example/tableserve/pkg/api"
	"github.com/example/tableserve/pkg/cart"
	"github.com/example/tableserve/pkg/checkout"
	"github.com/example/tableserve/pkg/config"
	"github.com/example/tableserve/pkg/discovery"
	"github.com/example/tableserve/pkg/ledger"
	"github.com/example/tableserve/pkg/logger"
	"github.com/example/tableserve/pkg/payment"
	"github.com/example/tableserve/pkg/payout"
	"github.com/example/tableserve/pkg/pricing"
	"github.com/example/tableserve/pkg/repository"
	"github.com/example/tableserve/pkg/reservation"
)

func main() {
	// Load config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(&cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting server",
		zap.String("name", cfg.Server.Name),
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("grpc_port", cfg.Server.GRPCPort))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// MongoDB holds orders, transactions, payouts and reservations
	mongoRepo, err := repository.NewMongoRepository(&cfg.MongoDB)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	if err := mongoRepo.Ping(ctx); err != nil {
		log.Fatal("Failed to ping MongoDB", zap.Error(err))
	}
	if err := mongoRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal("Failed to ensure MongoDB indexes", zap.Error(err))
	}

	// Redis holds session carts
	redisRepo := repository.NewRedisRepository(&cfg.Redis)
	if err := redisRepo.Ping(ctx); err != nil {
		log.Warn("Failed to ping Redis, carts will fail until it recovers", zap.Error(err))
	}

	// MySQL holds the menu catalog
	catalog, err := repository.NewCatalogRepository(&cfg.MySQL)
	if err != nil {
		log.Fatal("Failed to connect to MySQL", zap.Error(err))
	}

	// Setup service discovery
	sd, err := discovery.NewServiceDiscovery(&cfg.Etcd)
	if err != nil {
		log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		sd = nil
	}
	instance := &discovery.ServiceInstance{
		Name: cfg.Server.Name,
		Host: cfg.Server.Host,
		Port: cfg.Server.HTTPPort,
	}
	if sd != nil {
		if err := sd.Register(context.Background(), instance); err != nil {
			log.Warn("Failed to register service", zap.Error(err))
		}
	}

	rules := pricing.Rules{
		DeliveryFee: cfg.Checkout.DeliveryFee,
		TaxRate:     cfg.Checkout.TaxRate,
	}

	carts := cart.NewAggregator(redisRepo, rules, log)
	gateway := payment.NewHTTPGateway(&cfg.Gateway, log)
	orchestrator := checkout.NewOrchestrator(mongoRepo, gateway, &cfg.Checkout, log)
	txnLedger := ledger.New(mongoRepo, log)
	payouts := payout.NewAggregator(mongoRepo, log)
	reservations := reservation.NewService(mongoRepo, cfg.Reservation.Tables, cfg.Reservation.Slots, reservation.NewQREncoder(), log)

	server := api.NewServer(cfg, log, catalog, carts, orchestrator, txnLedger, payouts, reservations)

	// Start HTTP server in goroutine
	httpErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			httpErr <- err
		}
	}()

	// Start gRPC health server in goroutine
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthServer.SetServingStatus(cfg.Server.Name, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcErr := make(chan error, 1)
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
		if err != nil {
			grpcErr <- err
			return
		}
		if err := grpcServer.Serve(lis); err != nil {
			grpcErr <- err
		}
	}()

	log.Info("Server started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("Received shutdown signal")
	case err := <-httpErr:
		log.Fatal("HTTP server error", zap.Error(err))
	case err := <-grpcErr:
		log.Fatal("gRPC server error", zap.Error(err))
	}

	healthServer.SetServingStatus(cfg.Server.Name, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if sd != nil {
		if err := sd.Deregister(shutdownCtx, instance); err != nil {
			log.Warn("Failed to deregister service", zap.Error(err))
		}
		sd.Close()
	}
	if err := redisRepo.Close(); err != nil {
		log.Warn("Failed to close Redis", zap.Error(err))
	}
	if err := mongoRepo.Close(shutdownCtx); err != nil {
		log.Warn("Failed to close MongoDB", zap.Error(err))
	}

	log.Info("Server stopped")
}
