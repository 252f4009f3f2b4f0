package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"order-desk/config"
	"order-desk/internal/api"
	"order-desk/internal/broker"
	"order-desk/internal/catalog"
	"order-desk/internal/redisclient"
	"order-desk/internal/service"
	"order-desk/internal/store"
	"order-desk/internal/util"
	"order-desk/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const serviceName = "order-desk"

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, serviceName); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting order desk")

	tp, err := util.InitTracer(serviceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	policy, err := orderPolicy(cfg.Business)
	if err != nil {
		logger.Fatal("Invalid order policy", zap.Error(err))
	}

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)

	queryCatalog := catalog.New(db.GetDB(), redisClient, time.Duration(cfg.Business.CatalogCacheTTLSeconds)*time.Second)
	writer := service.NewOrderWriter(db, policy)
	orderService := service.NewOrderService(db, writer, eventPublisher, queryCatalog, redisClient, service.Options{
		WriteTimeout:   time.Duration(cfg.Business.OrderWriteTimeoutSeconds) * time.Second,
		IdempotencyTTL: time.Duration(cfg.Business.IdempotencyTTLSeconds) * time.Second,
	})

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	stockConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	stockWorker := worker.NewStockWarningWorker(stockConsumer, redisClient)
	go func() {
		if err := stockWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Stock warning worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, queryCatalog, redisClient, db)
	handler.SetupRoutes(router, serviceName)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := stockWorker.Stop(); err != nil {
		logger.Warn("Stock warning worker did not stop cleanly", zap.Error(err))
	}

	logger.Info("Server exited")
}

func orderPolicy(b config.BusinessConfig) (service.OrderPolicy, error) {
	shipping, err := decimal.NewFromString(b.ShippingCost)
	if err != nil {
		return service.OrderPolicy{}, fmt.Errorf("shipping cost %q: %w", b.ShippingCost, err)
	}
	if shipping.IsNegative() {
		return service.OrderPolicy{}, fmt.Errorf("shipping cost %q is negative", b.ShippingCost)
	}
	return service.OrderPolicy{
		ShippingCost: shipping,
		Recipient:    b.Recipient,
		Street:       b.Street,
		City:         b.City,
		Region:       b.Region,
		PostalCode:   b.PostalCode,
		Country:      b.Country,
	}, nil
}
