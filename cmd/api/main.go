package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/anishmaharjan/kinmel-backend/api/routes"
	"github.com/anishmaharjan/kinmel-backend/internal/address"
	"github.com/anishmaharjan/kinmel-backend/internal/cart"
	"github.com/anishmaharjan/kinmel-backend/internal/checkout"
	"github.com/anishmaharjan/kinmel-backend/internal/fulfillment"
	"github.com/anishmaharjan/kinmel-backend/internal/orders"
	"github.com/anishmaharjan/kinmel-backend/internal/payments"
	"github.com/anishmaharjan/kinmel-backend/internal/stock"
	"github.com/anishmaharjan/kinmel-backend/pkg/config"
	"github.com/anishmaharjan/kinmel-backend/pkg/db"
	"github.com/anishmaharjan/kinmel-backend/pkg/esewa"
	"github.com/anishmaharjan/kinmel-backend/pkg/logger"
	"github.com/anishmaharjan/kinmel-backend/pkg/metrics"
	"github.com/anishmaharjan/kinmel-backend/pkg/migrate"
	"github.com/anishmaharjan/kinmel-backend/pkg/outbox"
	"github.com/anishmaharjan/kinmel-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	addressRepo := address.NewRepository(dbClient.DB())
	cartRepo := cart.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	cartService, err := cart.NewService(cartRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(
		addressRepo,
		cartRepo,
		ordersRepo,
		stock.NewLedger(),
		dbClient,
		outboxSvc,
		cfg.Checkout.DeliveryCharge,
		checkoutMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	fulfillmentService, err := fulfillment.NewService(ordersRepo, dbClient, outboxSvc, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(
		paymentsRepo,
		ordersRepo,
		esewa.NewClient(cfg.Esewa),
		cfg.Esewa,
		dbClient,
		outboxSvc,
		redisClient,
		paymentMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Cfg:                cfg,
			Logg:               logg,
			DB:                 dbClient,
			Redis:              redisClient,
			AddressRepo:        addressRepo,
			OrdersRepo:         ordersRepo,
			CartService:        cartService,
			CheckoutService:    checkoutService,
			FulfillmentService: fulfillmentService,
			PaymentsService:    paymentsService,
			MetricsGatherer:    registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
