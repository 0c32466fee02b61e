// Package main runs the paper trading engine
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/trogers1052/paper-trader/internal/api"
	"github.com/trogers1052/paper-trader/internal/config"
	"github.com/trogers1052/paper-trader/internal/database"
	"github.com/trogers1052/paper-trader/internal/kafka"
	"github.com/trogers1052/paper-trader/internal/logger"
	"github.com/trogers1052/paper-trader/internal/pricefeed"
	"github.com/trogers1052/paper-trader/internal/simulator"
	"github.com/trogers1052/paper-trader/internal/snapshot"
	"github.com/trogers1052/paper-trader/internal/strategy"
	"github.com/trogers1052/paper-trader/internal/trading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("paper trader exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		return err
	}
	balance, err := db.EnsureInitialBalance(ctx, cfg.InitialBalance)
	if err != nil {
		return fmt.Errorf("failed to seed balance: %w", err)
	}
	log.Info("ledger ready", zap.Stringer("balance", balance.Balance))

	prices := pricefeed.NewClient(cfg.PriceFeed, log)

	var executorOpts []trading.Option
	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TradesTopic)
		defer producer.Close()
		executorOpts = append(executorOpts, trading.WithEventPublisher(producer))
	}

	executor, err := trading.NewExecutor(cfg.Trading, db, prices, log, executorOpts...)
	if err != nil {
		return err
	}

	engine, err := strategy.NewEngine(cfg.Strategy, log, strategy.NewDefaultStrategies(cfg.Strategy, db, log)...)
	if err != nil {
		return err
	}

	var simOpts []simulator.Option
	if cfg.Redis.Enabled() {
		publisher, err := snapshot.NewRedisPublisher(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Redis.SnapshotKey, cfg.Redis.SnapshotTTL)
		if err != nil {
			return err
		}
		defer publisher.Close()
		simOpts = append(simOpts, simulator.WithSnapshotPublisher(publisher))
	}

	sim, err := simulator.New(cfg.Simulator, db, prices, engine, executor, log, simOpts...)
	if err != nil {
		return err
	}
	if err := sim.Start(ctx); err != nil {
		return err
	}

	var consumers sync.WaitGroup
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled() {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestsTopic, cfg.Kafka.GroupID, sim, log)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Start(ctx); err != nil {
				log.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(api.NewHandler(db, sim, prices, log)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("http server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}

	sim.Stop()

	consumers.Wait()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("failed to close kafka consumer", zap.Error(err))
		}
	}

	log.Info("shutdown complete")
	return nil
}
