package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/fcg-cloud/payments-service/internal/config"
	"github.com/fcg-cloud/payments-service/internal/handler"
	"github.com/fcg-cloud/payments-service/internal/logging"
	"github.com/fcg-cloud/payments-service/internal/messaging"
	"github.com/fcg-cloud/payments-service/internal/middleware"
	"github.com/fcg-cloud/payments-service/internal/repository"
	"github.com/fcg-cloud/payments-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("payments-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	paymentRepo := repository.NewPaymentRepository(db)
	eventStore := repository.NewEventStore(db)
	outboxRepo := repository.NewRelayOutboxRepository(db)

	paymentSvc := service.NewPaymentService(paymentRepo, eventStore, db)

	resolver := service.NewRandomResolver(
		rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg.SettleSuccessBias,
	)
	worker := service.NewSettlementWorker(
		paymentRepo,
		eventStore,
		resolver,
		db,
		logger,
		time.Duration(cfg.SettleIntervalS)*time.Second,
		time.Duration(cfg.SettleDelayMS)*time.Millisecond,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	if cfg.AMQPURL != "" {
		publisher, err := messaging.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		relay := service.NewEventRelay(
			outboxRepo,
			publisher,
			db,
			logger,
			time.Duration(cfg.RelayIntervalS)*time.Second,
			cfg.RelayBatch,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Start(ctx)
		}()
	} else {
		slog.Info("event relay disabled: AMQP_URL not set")
	}

	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	eventHandler := handler.NewEventHandler(paymentSvc)
	healthHandler := handler.NewHealthHandler(db)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/payments", paymentHandler.Create)
	mux.HandleFunc("GET /api/v1/payments/{id}", paymentHandler.Get)
	mux.HandleFunc("GET /api/v1/users/{id}/payments", paymentHandler.ListByUser)
	mux.HandleFunc("GET /api/v1/events/{aggregateId}", eventHandler.GetByAggregate)
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	chain := middleware.Recovery(middleware.Correlation(middleware.Logging(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	wg.Wait()
	slog.Info("stopped")
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	var db *sql.DB
	var err error
	for i := range 30 {
		db, err = repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
			MaxOpenConns:     cfg.DBMaxOpenConns,
			MaxIdleConns:     cfg.DBMaxIdleConns,
			ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
			ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		})
		if err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
