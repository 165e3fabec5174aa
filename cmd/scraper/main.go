package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/common/messaging"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/service"
	"github.com/sirupsen/logrus"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline once and exit instead of waiting for commands")
	maxPages := flag.Int("max-pages", 0, "listing pages to crawl with -once, 0 uses scraper.maxPages")
	flag.Parse()

	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(cfg)

	log.WithFields(logrus.Fields{
		"component": "scraper_main",
		"config":    fmt.Sprintf("%+v", cfg.Scraper),
	}).Debug("Scraper configuration loaded")

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"signal":    sig,
		}).Info("Received signal, shutting down")
		cancel()
	}()

	catalog, details, closeStores, err := service.Stores(ctx, cfg)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to open stores")
	}
	defer closeStores()

	opts := service.NewOptions(cfg, log, catalog, details)

	if *once {
		scraperService := service.NewScraperService(cfg.GetScraperConfig(), cfg.GetRabbitMQConfig(), log, nil, opts)
		summary, err := scraperService.Run(ctx, *maxPages)
		if err != nil {
			log.WithFields(logrus.Fields{
				"component": "scraper_main",
				"error":     err,
			}).Error("Scraping failed")
			closeStores()
			os.Exit(1)
		}

		log.WithFields(logrus.Fields{
			"component":       "scraper_main",
			"total_processed": summary.TotalProcessed,
			"total_saved":     summary.TotalSaved,
		}).Info("Scraping finished")
		return
	}

	// Initialize RabbitMQ connection
	messageClient, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig(), log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to initialize RabbitMQ")
	}
	defer messageClient.Close()

	scraperService := service.NewScraperService(cfg.GetScraperConfig(), cfg.GetRabbitMQConfig(), log, messageClient, opts)

	if err := scraperService.Start(ctx); err != nil {
		log.WithFields(logrus.Fields{
			"component": "scraper_main",
			"error":     err,
		}).Fatal("Failed to start Scraper service")
	}

	log.WithField("component", "scraper_main").Info("Scraper service started, waiting for commands")

	// Block until we receive a termination signal
	<-ctx.Done()

	scraperService.Stop()
}
