package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/messaging"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/crawler"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/extract"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/pacer"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoCatalogEntries is returned when the catalog is still empty after
	// the catalog crawl, so there is nothing to fetch details for
	ErrNoCatalogEntries = errors.New("no movie entries found in catalog")

	// ErrRunInProgress is returned when a run is requested while another one
	// is still going in this process
	ErrRunInProgress = errors.New("a scrape run is already in progress")
)

// Options are the collaborators a ScraperService drives
type Options struct {
	Launcher     render.Launcher
	Listing      extract.ListingExtractor
	Detail       extract.DetailExtractor
	CatalogStore store.Store[models.ListingEntry]
	DetailStore  store.Store[models.DetailRecord]
	PagePacer    pacer.Pacer
	ItemPacer    pacer.Pacer
	// Events receives crawl progress in addition to the broker, may be nil
	Events crawler.EventSink
}

// ScraperService is the struct that holds the scraper service
type ScraperService struct {
	config    *config.ScraperConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logrus.Logger
	message   messaging.Client
	opts      Options
	events    crawler.EventSink

	// running is held for the whole duration of a run
	running sync.Mutex

	mu         sync.Mutex
	cancelFunc context.CancelFunc

	// wg tracks runs started from broker commands
	wg sync.WaitGroup
}

// NewScraperService creates a new ScraperService. msg may be nil when the
// service only runs on demand (HTTP trigger or one-shot mode).
func NewScraperService(cfg *config.ScraperConfig, rabbitCfg *config.RabbitMQConfig, logger *logrus.Logger, msg messaging.Client, opts Options) *ScraperService {
	if opts.PagePacer == nil {
		opts.PagePacer = pacer.None{}
	}
	if opts.ItemPacer == nil {
		opts.ItemPacer = pacer.None{}
	}

	sinks := crawler.MultiSink{}
	if opts.Events != nil {
		sinks = append(sinks, opts.Events)
	}
	if msg != nil {
		sinks = append(sinks, NewBrokerSink(msg, logger))
	}

	return &ScraperService{
		config:    cfg,
		rabbitCfg: rabbitCfg,
		log:       logger,
		message:   msg,
		opts:      opts,
		events:    sinks,
	}
}

// Run executes the full pipeline: catalog crawl, merge with the persisted
// catalog, then detail crawl for every catalog id. maxPages <= 0 falls back to
// the configured page budget.
func (s *ScraperService) Run(ctx context.Context, maxPages int) (*models.RunSummary, error) {
	if !s.running.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.running.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCancel(cancel)
	defer s.setCancel(nil)

	if maxPages <= 0 {
		maxPages = s.config.MaxPages
	}

	s.log.WithFields(logrus.Fields{
		"max_pages": maxPages,
		"component": "scraper",
	}).Info("Starting scraping process")

	catalog := loadOrEmpty(ctx, s.opts.CatalogStore, s.log, "catalog")

	catalogCrawler := crawler.NewCatalogCrawler(
		crawler.CatalogConfig{
			MaxPages:     maxPages,
			ListingURL:   s.config.ListingPageURL,
			GridSelector: s.config.GridSelector,
		},
		s.opts.Launcher, s.opts.Listing, s.opts.PagePacer, s.opts.CatalogStore, s.events, s.log,
	)
	fresh := catalogCrawler.Crawl(ctx, catalog)

	merged := append(slices.Clone(catalog), fresh...)
	if s.opts.CatalogStore != nil {
		// A stop command must not cost us the pages already crawled
		if err := s.opts.CatalogStore.Save(context.WithoutCancel(ctx), merged); err != nil {
			s.log.WithField("component", "scraper").WithError(err).Error("Failed to save catalog")
		}
	}

	s.log.WithFields(logrus.Fields{
		"new":       len(fresh),
		"total":     len(merged),
		"component": "scraper",
	}).Info("Catalog merged")

	if len(merged) == 0 {
		s.events.Publish(ctx, models.CrawlEvent{
			Stage: models.StageRun, Status: models.StatusFailed, Error: ErrNoCatalogEntries.Error(),
		})
		return nil, ErrNoCatalogEntries
	}

	ids := crawler.Identifiers(merged)
	existing := loadOrEmpty(ctx, s.opts.DetailStore, s.log, "details")

	detailCrawler := crawler.NewDetailCrawler(
		crawler.DetailConfig{
			DetailURL:       s.config.DetailPageURL,
			ContentSelector: s.config.DetailSelector,
		},
		s.opts.Launcher, s.opts.Detail, s.opts.ItemPacer, s.opts.DetailStore, s.events, s.log,
	)
	details := detailCrawler.Crawl(ctx, ids, existing)

	summary := &models.RunSummary{
		NewEntries:     len(fresh),
		CatalogSize:    len(merged),
		TotalProcessed: len(ids),
		TotalSaved:     len(details),
	}

	fields := logrus.Fields{
		"new_entries":     summary.NewEntries,
		"catalog_size":    summary.CatalogSize,
		"total_processed": summary.TotalProcessed,
		"total_saved":     summary.TotalSaved,
		"component":       "scraper",
	}
	if ctx.Err() != nil {
		s.log.WithFields(fields).Info("Scraping stopped by stop command")
	} else {
		s.log.WithFields(fields).Info("Scraping complete")
	}

	s.events.Publish(ctx, models.CrawlEvent{
		Stage:  models.StageRun,
		Status: models.StatusDone,
		Stats: &models.Stats{
			NewEntries:     summary.NewEntries,
			DetailsFetched: len(details) - len(existing),
		},
	})

	return summary, nil
}

// Cancel stops the active run, if any, and reports whether there was one
func (s *ScraperService) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelFunc == nil {
		return false
	}
	s.cancelFunc()
	s.cancelFunc = nil
	return true
}

func (s *ScraperService) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()
}

// Start declares the queues and consumes scraper commands until ctx is done
func (s *ScraperService) Start(ctx context.Context) error {
	if s.message == nil {
		return errors.New("scraper service started without a messaging client")
	}

	if err := s.setupMessaging(); err != nil {
		return fmt.Errorf("failed to set up messaging: %w", err)
	}

	// Commands queued while no worker was listening are stale
	if err := s.message.PurgeQueue(s.rabbitCfg.Queue.Scraper); err != nil {
		s.log.WithField("component", "service").WithError(err).Warn("Failed to purge pending commands")
	}

	return s.message.Consume(ctx, s.rabbitCfg.Queue.Scraper, func(msg []byte, _ string) error {
		return s.handleCommand(ctx, msg)
	})
}

// Stop cancels the active run and waits for command-started runs to return
func (s *ScraperService) Stop() {
	s.Cancel()
	s.wg.Wait()
	s.log.WithField("component", "service").Info("Scraper service stopped gracefully")
}

// setupMessaging sets up the messaging infrastructure
func (s *ScraperService) setupMessaging() error {
	queues := []struct {
		name        string
		routingKeys []string
	}{
		{
			// Commands for this worker
			name:        s.rabbitCfg.Queue.Scraper,
			routingKeys: []string{config.RoutingCommandScraper},
		},
		{
			// Crawl events for the web panel
			name:        s.rabbitCfg.Queue.Log,
			routingKeys: []string{config.RoutingLogScraper},
		},
	}

	for _, q := range queues {
		if err := s.message.DeclareQueue(q.name); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}

		for _, key := range q.routingKeys {
			if err := s.message.BindQueue(q.name, key); err != nil {
				return fmt.Errorf("failed to bind queue %s with key %s: %w", q.name, key, err)
			}
		}
	}

	return nil
}

// handleCommand processes incoming commands. Malformed and unknown commands
// are logged and acknowledged so they are not redelivered forever.
func (s *ScraperService) handleCommand(ctx context.Context, msg []byte) error {
	var command models.ScrapingCommand
	if err := json.Unmarshal(msg, &command); err != nil {
		s.log.WithField("component", "command_handler").WithError(err).Error("Failed to unmarshal command")
		return nil
	}

	s.log.WithFields(logrus.Fields{
		"action":    command.Action,
		"data":      command.Data,
		"component": "command_handler",
	}).Info("Received command")

	switch command.Action {
	case models.StartScrapingAction:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.WithFields(logrus.Fields{
						"component": "command_handler",
						"panic":     r,
					}).Error("Scraping run crashed")
				}
			}()
			if _, err := s.Run(ctx, command.Data.MaxPages); err != nil {
				s.log.WithField("component", "command_handler").WithError(err).Warn("Scraping run ended without results")
			}
		}()

	case models.StopScrapingAction:
		if s.Cancel() {
			s.log.WithFields(logrus.Fields{
				"status":    "stopping",
				"component": "command_handler",
			}).Info("Stop command has been sent, waiting for the run to stop")
		} else {
			s.log.WithFields(logrus.Fields{
				"status":    "idle",
				"component": "command_handler",
			}).Info("No scraping processes are running")
		}

	default:
		s.log.WithFields(logrus.Fields{
			"action":    command.Action,
			"component": "command_handler",
		}).Warn("Unknown command, dropping it")
	}

	return nil
}

// loadOrEmpty reads a collection, falling back to empty when it is missing
// or unreadable
func loadOrEmpty[T any](ctx context.Context, st store.Store[T], log *logrus.Logger, name string) []T {
	if st == nil {
		return []T{}
	}

	items, err := st.Load(ctx)
	if err != nil {
		log.WithFields(logrus.Fields{
			"store":     name,
			"component": "scraper",
		}).WithError(err).Warn("Failed to load collection, starting from empty")
		return []T{}
	}
	return items
}
