package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/timour/ucp-merchant/common/config"
	"github.com/timour/ucp-merchant/common/logger"
)

// simulationSecret returns the configured secret, minting a random one when
// none is set so the simulate-shipping endpoint is never left open or dead.
func simulationSecret(configured string) string {
	if configured != "" {
		return configured
	}
	return uuid.NewString()
}

func main() {
	envErr := godotenv.Load()

	cfg := Config{
		ServiceName:      config.GetEnv("SERVICE_NAME", "ucp-merchant"),
		ShopID:           config.GetEnv("SHOP_ID", "ucp-flower-shop"),
		SimulationSecret: simulationSecret(config.GetEnv("SIMULATION_SECRET", "")),
	}

	log := logger.New(cfg.ServiceName)
	if envErr != nil {
		log.Info("no .env file found, using environment")
	}
	if _, ok := config.LookupEnv("SIMULATION_SECRET"); !ok {
		log.Info("generated simulation secret", slog.String("simulation_secret", cfg.SimulationSecret))
	}

	var ok bool
	if cfg.HTTPAddr, ok = config.LookupEnv("HTTP_ADDR"); !ok {
		log.Error("HTTP_ADDR is required")
		os.Exit(1)
	}
	if cfg.CatalogDBPath, ok = config.LookupEnv("CATALOG_DB_PATH"); !ok {
		log.Error("CATALOG_DB_PATH is required")
		os.Exit(1)
	}
	if cfg.TransactionsDBPath, ok = config.LookupEnv("TRANSACTIONS_DB_PATH"); !ok {
		log.Error("TRANSACTIONS_DB_PATH is required")
		os.Exit(1)
	}
	cfg.BaseURL = config.GetEnv("BASE_URL", "http://"+cfg.HTTPAddr)

	log.Info("starting service",
		slog.String("http_addr", cfg.HTTPAddr),
		slog.String("catalog_db", cfg.CatalogDBPath),
		slog.String("transactions_db", cfg.TransactionsDBPath),
	)

	app, err := NewApp(cfg)
	if err != nil {
		log.Error("failed to create app", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received shutdown signal")
		if err := app.Shutdown(ctx); err != nil {
			log.Error("error during shutdown", slog.Any("error", err))
		}
		cancel()
	}()

	if err := app.Start(ctx); err != nil {
		log.Error("failed to start app", slog.Any("error", err))
		os.Exit(1)
	}
}
