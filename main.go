package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/finbeat/go-orderbook-tracker/config"
	promclient "github.com/finbeat/go-orderbook-tracker/infrastructure/prometheus"
	"github.com/finbeat/go-orderbook-tracker/logger"
	"github.com/finbeat/go-orderbook-tracker/provider"
	"github.com/finbeat/go-orderbook-tracker/tracker"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Service.Name,
		"version": cfg.Service.Version,
	}).Info("starting order book tracker")

	if cfg.Metrics.Enabled {
		go promclient.StartPromClientServer(cfg.Metrics.Addr)
	}

	connManager, err := provider.NewConnectionManager(cfg)
	if err != nil {
		log.WithError(err).Error("failed to build connection manager")
		os.Exit(1)
	}
	if err := connManager.Init(); err != nil {
		log.WithError(err).Error("failed to connect to exchanges")
		os.Exit(1)
	}
	defer connManager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trackerConf := tracker.Config{
		SavedQueueSize: cfg.Tracker.SavedQueueSize,
		PastDiffWindow: cfg.Tracker.PastDiffWindow,
		TrackingBuffer: cfg.Tracker.TrackingBuffer,
		ErrorBackoff:   cfg.Tracker.ErrorBackoff,
	}

	trackers := make([]*tracker.OrderBookTracker, 0, 2)
	for exchange, source := range connManager.DataSources() {
		t := tracker.New(exchange, source, trackerConf)
		t.Start(ctx)
		trackers = append(trackers, t)
	}

	if len(trackers) == 0 {
		log.Error("no exchange is enabled in the configuration")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	for _, t := range trackers {
		t.Stop()
	}

	log.Info("order book tracker stopped")
}
