package crawler

import (
	"context"
	"fmt"
	"slices"

	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/extract"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/pacer"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

// PageOutcome tells the pagination loop what a listing page produced
type PageOutcome int

const (
	// PageOK means the page yielded at least one entry
	PageOK PageOutcome = iota
	// PageEnd means the page rendered but held no entries
	PageEnd
	// PageFailed means the page could not be rendered or extracted
	PageFailed
)

func (o PageOutcome) String() string {
	switch o {
	case PageOK:
		return "ok"
	case PageEnd:
		return "end"
	case PageFailed:
		return "failed"
	}
	return fmt.Sprintf("PageOutcome(%d)", int(o))
}

// PageResult is the outcome of fetching one listing page
type PageResult struct {
	Outcome PageOutcome
	Page    int
	URL     string
	Entries []models.ListingEntry
	Err     error
}

// CatalogConfig holds the pagination settings
type CatalogConfig struct {
	MaxPages     int
	ListingURL   func(page int) string
	GridSelector string
}

// CatalogCrawler walks the browse pages and collects listing entries not
// yet present in the catalog
type CatalogCrawler struct {
	cfg      CatalogConfig
	launcher render.Launcher
	extract  extract.ListingExtractor
	pacer    pacer.Pacer
	store    store.Store[models.ListingEntry]
	events   EventSink
	log      *logger.ComponentLogger
}

// NewCatalogCrawler creates a CatalogCrawler. store may be nil, in which case
// the caller is responsible for persisting the merged catalog.
func NewCatalogCrawler(cfg CatalogConfig, launcher render.Launcher, extractor extract.ListingExtractor,
	p pacer.Pacer, st store.Store[models.ListingEntry], events EventSink, log *logrus.Logger) *CatalogCrawler {
	return &CatalogCrawler{
		cfg:      cfg,
		launcher: launcher,
		extract:  extractor,
		pacer:    p,
		store:    st,
		events:   sinkOrDiscard(events),
		log:      logger.NewComponentLogger(log, "catalog_crawler"),
	}
}

// Crawl paginates from page 1 up to MaxPages and returns only the entries
// whose title is not in existing. It stops early on an empty page or on the
// first page that fails to load; whatever was accepted before is returned.
func (c *CatalogCrawler) Crawl(ctx context.Context, existing []models.ListingEntry) (result []models.ListingEntry) {
	defer func() {
		if p := recover(); p != nil {
			c.log.WithField("panic", fmt.Sprint(p)).Error("Catalog crawl crashed, discarding its result")
			result = []models.ListingEntry{}
		}
	}()

	accepted := []models.ListingEntry{}

	r, err := c.launcher.Launch(ctx)
	if err != nil {
		c.log.WithError(err).Error("Failed to launch renderer, catalog crawl aborted")
		c.events.Publish(ctx, models.CrawlEvent{Stage: models.StageCatalog, Status: models.StatusFailed, Error: err.Error()})
		return accepted
	}
	defer func() {
		if err := r.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close renderer")
		}
		c.log.Entry().Debug("Renderer closed")
	}()

	// Titles are the identity key of the catalog
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.Title] = struct{}{}
	}

	stats := &models.Stats{}

	for page := 1; page <= c.cfg.MaxPages; page++ {
		if page > 1 {
			if err := c.pacer.Wait(ctx); err != nil {
				c.log.WithFields(logrus.Fields{
					"page":   page,
					"reason": "context_canceled",
				}).Info("Catalog crawl stopped")
				break
			}
		}

		res := c.fetchPage(ctx, r, page)

		if res.Outcome == PageFailed {
			c.log.WithFields(logrus.Fields{
				"page": page,
				"url":  res.URL,
			}).WithError(res.Err).Error("Failed to load listing page, ending catalog crawl")
			c.events.Publish(ctx, models.CrawlEvent{
				Stage: models.StageCatalog, Status: models.StatusFailed,
				Page: page, URL: res.URL, Error: res.Err.Error(), Stats: snap(stats),
			})
			break
		}

		if res.Outcome == PageEnd {
			c.log.WithFields(logrus.Fields{
				"page": page,
				"url":  res.URL,
			}).Info("No movies found on page, assuming end of results")
			c.events.Publish(ctx, models.CrawlEvent{
				Stage: models.StageCatalog, Status: models.StatusEnd, Page: page, URL: res.URL, Stats: snap(stats),
			})
			break
		}

		fresh := make([]models.ListingEntry, 0, len(res.Entries))
		for _, e := range res.Entries {
			if _, dup := seen[e.Title]; dup {
				continue
			}
			seen[e.Title] = struct{}{}
			fresh = append(fresh, e)
		}
		accepted = append(accepted, fresh...)

		stats.PagesScraped++
		stats.NewEntries = len(accepted)

		c.log.WithFields(logrus.Fields{
			"page":      page,
			"found":     len(res.Entries),
			"new":       len(fresh),
			"total_new": len(accepted),
		}).Info("Page scraped")
		c.events.Publish(ctx, models.CrawlEvent{
			Stage: models.StageCatalog, Status: models.StatusSuccess, Page: page, URL: res.URL, Stats: snap(stats),
		})

		if c.store != nil && len(fresh) > 0 {
			merged := append(slices.Clone(existing), accepted...)
			// A stop between fetch and save must not drop the page
			if err := c.store.Save(context.WithoutCancel(ctx), merged); err != nil {
				c.log.WithField("page", page).WithError(err).Error("Failed to save catalog")
			}
		}
	}

	c.log.WithFields(logrus.Fields{
		"pages":     stats.PagesScraped,
		"new":       len(accepted),
		"existing":  len(existing),
		"max_pages": c.cfg.MaxPages,
	}).Info("Catalog crawl complete")

	return accepted
}

// fetchPage renders and extracts one listing page. A page either extracts
// fully or contributes nothing.
func (c *CatalogCrawler) fetchPage(ctx context.Context, r render.Renderer, page int) (res PageResult) {
	url := c.cfg.ListingURL(page)
	res = PageResult{Page: page, URL: url}

	defer func() {
		if p := recover(); p != nil {
			res = PageResult{Outcome: PageFailed, Page: page, URL: url, Err: fmt.Errorf("extracting %s: %v", url, p)}
		}
	}()

	c.log.WithFields(logrus.Fields{
		"page": page,
		"url":  url,
	}).Debug("Navigating to listing page")

	doc, err := r.Render(ctx, url, c.cfg.GridSelector)
	if err != nil {
		res.Outcome = PageFailed
		res.Err = err
		return res
	}

	entries := c.extract.Listing(doc)
	if len(entries) == 0 {
		res.Outcome = PageEnd
		return res
	}

	res.Outcome = PageOK
	res.Entries = entries
	return res
}
