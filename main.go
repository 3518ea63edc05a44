package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcart "github.com/Zhima-Mochi/minishop-checkout/internal/application/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/checkout"
	appinventory "github.com/Zhima-Mochi/minishop-checkout/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	domaddress "github.com/Zhima-Mochi/minishop-checkout/internal/domain/address"
	domcart "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	dominventory "github.com/Zhima-Mochi/minishop-checkout/internal/domain/inventory"
	domsales "github.com/Zhima-Mochi/minishop-checkout/internal/domain/sales"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/simulated"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	cartredis "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/config"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// backend is what both store implementations offer to the process.
type backend interface {
	checkout.Store
	Carts() domcart.Store
	Catalog() domcatalog.Reader
	Inventory() dominventory.Ledger
	Sales() domsales.Ledger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	if err := run(cfg, baseLogger, systemLogger); err != nil {
		systemLogger.Error("service_failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, baseLogger, systemLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	logger := zaplogger.New(baseLogger)
	counters, histograms := prometrics.Standard(prometrics.New(prometheus.DefaultRegisterer, "", ""))
	tel := infraobs.New(oteltrace.New(cfg.ServiceName), logger, counters, histograms)

	store, health, closeStore, err := openStore(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer closeStore()

	// In-memory event bus; Kafka and the cart cache hang off it.
	bus := outbox.NewBus(logger)

	var cache appcart.Cache
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			systemLogger.Warn("redis_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cache = cartredis.NewCartCache(client, cfg.CartCacheTTL)
	}
	carts := appcart.NewService(store.Carts(), store.Catalog(), cache, tel)
	cartWorker := appcart.NewWorker(
		workerpresentation.NewSubscriber(bus, logger, map[string]string{"worker": "cart"}),
		carts, tel,
	)
	cartWorker.Start()

	stockLevel := appinventory.NewStockLevelUseCase(store.Inventory(), store.Sales(), cfg.LowStockThreshold, tel)
	appinventory.NewWorker(
		workerpresentation.NewSubscriber(bus, logger, map[string]string{"worker": "inventory"}),
		stockLevel, tel,
	).Start()

	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(
			kafka.NewWriter(cfg.KafkaTopic, cfg.KafkaBrokers...),
			tel.WithLogger(logger.With(observability.F("topic", cfg.KafkaTopic))),
		)
		defer func() { _ = kp.Close() }()
		workerpresentation.NewSubscriber(bus, logger, map[string]string{"worker": "kafka_forwarder"}).
			SubscribeAll(kp.Forward())
	}

	bus.Start(ctx)

	gateway := simulated.New(cfg.PaymentSuccessRate)
	opts := []checkout.Option{
		checkout.WithGatewayTimeout(cfg.GatewayTimeout),
		checkout.WithPublishTimeout(cfg.PublishTimeout),
	}

	capture := checkout.NewCaptureUseCase(store, gateway, id.NewUUIDGenerator(), bus, tel,
		append(opts, checkout.WithCartInvalidator(carts))...)

	handler := httppresentation.NewHandler(httppresentation.Deps{
		CreateIntent:        checkout.NewCreateIntentUseCase(store.Addresses(), store.Intents(), gateway, tel, opts...),
		Capture:             capture,
		ListReconciliations: checkout.NewListReconciliationsUseCase(store.Reconciliations(), tel),
		GetOrder:            apporder.NewGetOrderUseCase(store.Orders(), tel),
		ListOrders:          apporder.NewListOrdersUseCase(store.Orders(), tel),
		UpdateStatus:        apporder.NewUpdateStatusUseCase(store.Orders(), bus, tel),
		StockLevel:          stockLevel,
		Carts:               carts,
		Health:              health,
		Metrics:             promhttp.Handler(),
	}, logger, tel)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
			zap.String("store_backend", cfg.StoreBackend),
			zap.Bool("cart_cache", cache != nil),
			zap.Bool("kafka", len(cfg.KafkaBrokers) > 0),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			systemLogger.Error("http_server_shutdown_error", zap.Error(err))
		} else {
			systemLogger.Info("http_server_stopped")
		}
		// drain events raised by the last requests
		bus.Stop(shutdownCtx)
		return err
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, systemLogger *zap.Logger) (backend, func(context.Context) error, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		cred := &postgres.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: cfg.MigrationsPath,
		}
		store, err := postgres.Open(ctx, cred)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.RunMigrations(cred.MigrationsDirPath); err != nil {
			_ = store.Close()
			return nil, nil, nil, err
		}
		systemLogger.Info("postgres_ready", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return store, store.Ping, func() { _ = store.Close() }, nil
	default:
		store := memory.NewStore()
		if err := seedDemo(store); err != nil {
			return nil, nil, nil, err
		}
		systemLogger.Info("memory_store_seeded")
		return store, nil, func() {}, nil
	}
}

// seedDemo gives a memory-backed process something to sell.
func seedDemo(s *memory.Store) error {
	products := []domcatalog.Product{
		{ID: 1, Name: "Taza minishop", Price: decimal.RequireFromString("8.90"), Stock: 50},
		{ID: 2, Name: "Polera minishop", Price: decimal.RequireFromString("19.90"), Stock: 20},
		{ID: 3, Name: "Stickers", Price: decimal.RequireFromString("2.50"), Stock: 200},
	}
	for _, p := range products {
		if err := s.PutProduct(p); err != nil {
			return fmt.Errorf("seed product %d: %w", p.ID, err)
		}
	}
	s.PutAddress(domaddress.Address{ID: 1, UserID: "demo-user", Street: "Av. Siempre Viva", Number: "742", City: "Santiago", Country: "CL"})
	return nil
}
