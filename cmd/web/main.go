package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/common/messaging"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/service"
	"github.com/rizkirmdhn/filmscraper/internal/web/handler"
	"github.com/rizkirmdhn/filmscraper/internal/web/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(cfg)

	// Print the Web panel configuration
	log.WithFields(logrus.Fields{
		"component": "web_main",
		"config":    fmt.Sprintf("%+v", cfg.WebPanel),
	}).Debug("Web panel configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	catalog, details, closeStores, err := service.Stores(ctx, cfg)
	if err != nil {
		log.WithFields(logrus.Fields{
			"component": "web_main",
			"error":     err,
		}).Fatal("Failed to open stores")
	}
	defer closeStores()

	// The broker is optional: without it /api/start and /api/stop answer 503
	var msgClient messaging.Client
	if cfg.RabbitMq.URL != "" {
		client, err := messaging.NewRabbitMQClient(cfg.GetRabbitMQConfig(), log)
		if err != nil {
			log.WithFields(logrus.Fields{
				"component": "web_main",
				"error":     err,
			}).Fatal("Failed to create RabbitMQ client")
		}
		defer client.Close()
		msgClient = client
	} else {
		log.WithField("component", "web_main").Warn("RabbitMQ URL not set, worker commands are disabled")
	}

	hub := websocket.NewHub(log)

	// In-process runs report straight to the hub
	opts := service.NewOptions(cfg, log, catalog, details)
	opts.Events = hub
	scraperService := service.NewScraperService(cfg.GetScraperConfig(), cfg.GetRabbitMQConfig(), log, nil, opts)

	// Check environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	h := handler.NewHandler(cfg, log, scraperService, catalog, details, msgClient, hub)
	h.RegisterRoutes(r)

	webCfg := cfg.GetWebPanelConfig()
	srv := &http.Server{
		Addr:    net.JoinHostPort(webCfg.Host, strconv.Itoa(webCfg.Port)),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		if err := h.ConsumeLogs(gctx); err != nil {
			return fmt.Errorf("failed to consume worker logs: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"component": "web_main",
			"addr":      srv.Addr,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.WithField("component", "web_main").Info("Shutting down")

		scraperService.Cancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithFields(logrus.Fields{
			"component": "web_main",
			"error":     err,
		}).Error("Web panel stopped with error")
	}
}
