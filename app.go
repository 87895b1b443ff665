package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/timour/ucp-merchant/checkout"
	"github.com/timour/ucp-merchant/common/logger"
	"github.com/timour/ucp-merchant/common/metrics"
	"github.com/timour/ucp-merchant/fulfillment"
	"github.com/timour/ucp-merchant/store"
	"github.com/timour/ucp-merchant/webhook"
)

type App struct {
	httpServer      *http.Server
	stores          *store.Stores
	config          Config
	logger          *slog.Logger
	metrics         *metrics.HTTPMetrics
	businessMetrics *metrics.BusinessMetrics
}

type Config struct {
	ServiceName        string
	HTTPAddr           string
	BaseURL            string
	ShopID             string
	CatalogDBPath      string
	TransactionsDBPath string
	SimulationSecret   string
}

func NewApp(config Config) (*App, error) {
	log := logger.New(config.ServiceName)

	stores, err := store.Open(config.CatalogDBPath, config.TransactionsDBPath)
	if err != nil {
		return nil, err
	}

	return &App{
		stores: stores,
		config: config,
		logger: log,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	// 1. Initialize Prometheus metrics
	a.metrics = metrics.NewHTTPMetrics(a.config.ServiceName)
	a.businessMetrics = metrics.NewBusinessMetrics(a.config.ServiceName)

	// 2. Wire the engine and its collaborators
	notifier := webhook.NewNotifier(a.logger, a.businessMetrics)
	evaluator := fulfillment.NewService(a.stores.Catalog, a.logger)
	engine := checkout.NewService(
		a.stores.Catalog,
		transactorAdapter{a.stores.Transactions},
		evaluator,
		notifier,
		a.config.BaseURL,
		a.logger,
		a.businessMetrics,
	)

	// 3. Setup HTTP server
	mux := http.NewServeMux()
	profiles := newProfileResolver(a.logger)
	discovery := newDiscoveryDocument(a.config.BaseURL, a.config.ShopID)
	h := newHandler(engine, a.stores.Transactions, profiles, discovery, a.config, a.logger)
	h.registerRoutes(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpServer = &http.Server{
		Addr:    a.config.HTTPAddr,
		Handler: a.metricsMiddleware(mux),
	}

	a.logger.Info("starting http server",
		slog.String("addr", a.config.HTTPAddr),
		slog.String("base_url", a.config.BaseURL),
	)
	return a.httpServer.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down gracefully")

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Error("http server shutdown error", slog.Any("error", err))
		}
	}
	return a.stores.Close()
}

// transactorAdapter lets the engine open transactions without depending on
// the concrete store type.
type transactorAdapter struct {
	transactions *store.Transactions
}

func (a transactorAdapter) Begin(ctx context.Context) (checkout.Tx, error) {
	return a.transactions.Begin(ctx)
}
