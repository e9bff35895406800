package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schoenhaut/inventory-service/config"
	"github.com/schoenhaut/inventory-service/pkg/broker"
	"github.com/schoenhaut/inventory-service/pkg/cache"
	"github.com/schoenhaut/inventory-service/pkg/logger"
	"github.com/schoenhaut/inventory-service/pkg/postgres"
	"github.com/schoenhaut/inventory-service/pkg/search"

	"github.com/schoenhaut/inventory-service/internal/payment/webhook"
	stockH "github.com/schoenhaut/inventory-service/internal/stock/handler"
	stockListenerPkg "github.com/schoenhaut/inventory-service/internal/stock/listener"
	stockRepoPkg "github.com/schoenhaut/inventory-service/internal/stock/repository"
	stockUCPkg "github.com/schoenhaut/inventory-service/internal/stock/usecase"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             "info",
		DisableCaller:     false,
		DisableStacktrace: false,
	}

	if cfg.Server.AppEnv == "development" || cfg.Server.AppEnv == "dev" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	// 4. Initialize Repository
	stockRepo := stockRepoPkg.NewPGRepository(db)

	// 5. Initialize Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// 5.5 Initialize Kafka Consumer
	kafkaConsumer := broker.NewConsumer(&broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})
	defer kafkaConsumer.Close()
	appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

	// 5.8 Initialize Elasticsearch
	esClient, err := search.NewClient(&search.Config{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Elasticsearch (audit search will be limited)", zap.Error(err))
		esClient = nil
	} else {
		appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
	}

	// 6. Initialize UseCase
	stockUC := stockUCPkg.NewStockUseCase(stockRepo, redisClient, esClient, appLogger)

	// 6.5 Initialize Listener
	stockListener := stockListenerPkg.NewStockListener(kafkaConsumer, stockUC, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stockListener.Start(ctx)

	// 7. Initialize Handlers
	stockHandler := stockH.NewStockHandler(stockUC, appLogger)
	webhookHandler := webhook.NewHandler(stockUC, redisClient, appLogger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", stockHandler.HealthCheck)
	mux.HandleFunc("/api/stock/items", stockHandler.CreateStockItem)
	mux.HandleFunc("/api/stock/availability", stockHandler.CheckAvailability)
	mux.HandleFunc("/api/stock/item", stockHandler.GetStockItem)
	mux.HandleFunc("/api/stock/adjust", stockHandler.AdjustStock)
	mux.HandleFunc("/api/stock/movements", stockHandler.ListMovements)
	mux.HandleFunc("/webhooks/payment", webhookHandler.HandlePaymentConfirmed)
	mux.HandleFunc("/webhooks/refund", webhookHandler.HandleRefund)

	// 8. Start HTTP Server
	port := cfg.Server.HTTPPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	httpServer := &http.Server{
		Addr:    port,
		Handler: mux,
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("port", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error", zap.Error(err))
	}

	appLogger.Info("Server stopped")
}
