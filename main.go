package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	slog "github.com/stellar/go/support/log"

	"github.com/stellarlend/oracle-go/aggregator"
	"github.com/stellarlend/oracle-go/cache"
	"github.com/stellarlend/oracle-go/config"
	"github.com/stellarlend/oracle-go/handlers"
	"github.com/stellarlend/oracle-go/providers"
	"github.com/stellarlend/oracle-go/submitter"
	"github.com/stellarlend/oracle-go/supervisor"
	"github.com/stellarlend/oracle-go/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.DefaultLogger.WithError(err).Fatal("invalid configuration")
	}

	logger := slog.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	logger.WithField("network", cfg.Network).
		WithField("assets", cfg.Assets).
		Info("starting oracle price service")

	provs := providers.NewFromConfig(cfg.Providers, cfg.HTTPTimeout)
	priceCache := cache.New(cfg.CacheTTL)
	priceValidator := validator.New(validator.Options{
		MinPrice:            cfg.MinPrice,
		MaxPrice:            cfg.MaxPrice,
		MaxStalenessSeconds: cfg.PriceStaleThresholdSecs,
		MaxDeviationPercent: cfg.MaxPriceDeviationPercent,
	})
	agg := aggregator.New(provs, priceValidator, priceCache, aggregator.Options{
		MinSources:        cfg.MinSources,
		UseWeightedMedian: cfg.UseWeightedMedian,
	}, logger)

	sub, err := submitter.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to construct submitter")
	}

	sup := supervisor.New(agg, sub, priceCache, priceValidator, provs, supervisor.Options{
		Network:    cfg.Network,
		ContractID: cfg.ContractID,
		Interval:   cfg.UpdateInterval,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Start(ctx, cfg.Assets)

	statusServer := &http.Server{
		Addr:    cfg.StatusAddr,
		Handler: handlers.NewRouter(sup),
	}
	go func() {
		logger.WithField("addr", cfg.StatusAddr).Info("status surface listening")
		if err := statusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("status server exited")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	sup.Stop()
	statusServer.Shutdown(context.Background())
}
