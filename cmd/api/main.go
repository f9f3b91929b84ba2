package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NavanKen/Eventify/internal/app"
	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/config"
	"github.com/NavanKen/Eventify/internal/messaging/kafka"
	"github.com/NavanKen/Eventify/internal/metrics"
	"github.com/NavanKen/Eventify/internal/storage/memory"
	"github.com/NavanKen/Eventify/internal/storage/postgres"
	"github.com/NavanKen/Eventify/internal/storage/redis"
	transporthttp "github.com/NavanKen/Eventify/internal/transport/http"
	"github.com/NavanKen/Eventify/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

// stores groups the persistence ports so the memory and PostgreSQL
// backends can be swapped by configuration.
type stores struct {
	ledger   app.InventoryLedger
	releaser app.StaleReservationReleaser
	txns     app.TransactionStore
	passes   app.PassStore
	catalog  app.CatalogStore
	close    func()
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.NewSystem()
	st, err := openStores(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("close kafka producer", "error", err)
		}
	}()

	purchaseOpts := []app.PurchaseOption{
		app.WithPurchaseLogger(logger),
		app.WithPurchaseMetrics(m),
		app.WithPurchasePublisher(producer),
	}
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		purchaseOpts = append(purchaseOpts, app.WithOrderLocker(redis.NewOrderLocker(client, cfg.OrderLockTTL)))
		logger.Info("order lock enabled", "ttl", cfg.OrderLockTTL)
	}

	purchaseSvc := app.NewPurchaseService(st.ledger, st.txns, st.passes, clk, purchaseOpts...)
	transactionSvc := app.NewTransactionService(st.txns, st.passes, st.ledger, clk,
		app.WithTransactionLogger(logger),
		app.WithTransactionMetrics(m),
		app.WithTransactionPublisher(producer),
	)
	adminSvc := app.NewAdminService(st.catalog, clk)

	sweeper := app.NewSweeper(st.releaser, clk, cfg.ReservationMaxAge, cfg.SweepInterval, logger, m)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(ctx)
	}()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: transporthttp.NewRouter(transporthttp.RouterConfig{
			Purchases:       purchaseSvc,
			Catalog:         adminSvc,
			Transactions:    transactionSvc,
			Gatherer:        reg,
			PurchaseLimiter: limiter,
			CORSOrigins:     cfg.CORSOrigins,
			Logger:          logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("api listening", "port", cfg.Port)
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
		stop()
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", "error", err)
	}
	<-sweepDone
	logger.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, clk clock.Clock, logger *slog.Logger) (stores, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn("using in-memory store, data is lost on restart")
		store := memory.NewStore(clk)
		return stores{
			ledger:   store,
			releaser: store,
			txns:     store,
			passes:   store,
			catalog:  store,
			close:    func() {},
		}, nil
	}

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("connect to db: %w", err)
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		pool.Close()
		return stores{}, fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", "names", applied)
	}

	ledger := postgres.NewLedger(pool, clk)
	return stores{
		ledger:   ledger,
		releaser: ledger,
		txns:     postgres.NewTransactionRepository(pool),
		passes:   postgres.NewPassRepository(pool),
		catalog:  postgres.NewCatalogRepository(pool),
		close:    pool.Close,
	}, nil
}
