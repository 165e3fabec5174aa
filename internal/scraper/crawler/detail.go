package crawler

import (
	"context"
	"fmt"

	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/extract"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/pacer"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

// DetailConfig holds the detail page settings
type DetailConfig struct {
	DetailURL       func(id string) string
	ContentSelector string
}

// DetailCrawler fetches detail pages for ids missing from the detail collection
type DetailCrawler struct {
	cfg      DetailConfig
	launcher render.Launcher
	extract  extract.DetailExtractor
	pacer    pacer.Pacer
	store    store.Store[models.DetailRecord]
	events   EventSink
	log      *logger.ComponentLogger
}

// NewDetailCrawler creates a DetailCrawler. When store is set the full
// collection is saved after every fetched record.
func NewDetailCrawler(cfg DetailConfig, launcher render.Launcher, extractor extract.DetailExtractor,
	p pacer.Pacer, st store.Store[models.DetailRecord], events EventSink, log *logrus.Logger) *DetailCrawler {
	return &DetailCrawler{
		cfg:      cfg,
		launcher: launcher,
		extract:  extractor,
		pacer:    p,
		store:    st,
		events:   sinkOrDiscard(events),
		log:      logger.NewComponentLogger(log, "detail_crawler"),
	}
}

// Crawl fetches every id not already in existing, one at a time, and returns
// existing followed by the new records in input order. A failing id is
// logged and skipped; it never stops the run.
func (d *DetailCrawler) Crawl(ctx context.Context, ids []string, existing []models.DetailRecord) (result []models.DetailRecord) {
	collection := make([]models.DetailRecord, 0, len(existing)+len(ids))
	collection = append(collection, existing...)

	defer func() {
		if p := recover(); p != nil {
			d.log.WithField("panic", fmt.Sprint(p)).Error("Detail crawl crashed, returning records fetched so far")
			result = collection
		}
	}()

	known := make(map[string]struct{}, len(collection))
	for _, rec := range collection {
		known[rec.ID] = struct{}{}
	}

	stats := &models.Stats{}
	attempted := 0

	for i, id := range ids {
		if ctx.Err() != nil {
			d.log.WithField("reason", "context_canceled").Info("Detail crawl stopped")
			break
		}

		if _, ok := known[id]; ok {
			stats.DetailsSkipped++
			d.log.WithField("id", id).Debug("Skipping movie, already scraped")
			d.events.Publish(ctx, models.CrawlEvent{
				Stage: models.StageDetail, Status: models.StatusSkipped, ID: id, Stats: snap(stats),
			})
			continue
		}

		if attempted > 0 {
			if err := d.pacer.Wait(ctx); err != nil {
				d.log.WithField("reason", "context_canceled").Info("Detail crawl stopped")
				break
			}
		}
		attempted++

		url := d.cfg.DetailURL(id)
		d.log.WithFields(logrus.Fields{
			"progress": fmt.Sprintf("%d/%d", i+1, len(ids)),
			"id":       id,
			"url":      url,
		}).Info("Scraping movie details")

		rec, err := d.fetch(ctx, id, url)
		if err != nil {
			stats.DetailsFailed++
			d.log.WithFields(logrus.Fields{
				"id":  id,
				"url": url,
			}).WithError(err).Warn("Failed to scrape movie details, skipping")
			d.events.Publish(ctx, models.CrawlEvent{
				Stage: models.StageDetail, Status: models.StatusFailed, ID: id, URL: url, Error: err.Error(), Stats: snap(stats),
			})
			continue
		}

		collection = append(collection, rec)
		known[id] = struct{}{}
		stats.DetailsFetched++

		if err := d.save(ctx, collection); err != nil {
			d.log.WithField("id", id).WithError(err).Error("Failed to save detail collection")
		}

		d.log.WithFields(logrus.Fields{
			"id":            id,
			"title":         rec.Title,
			"fetched_total": len(collection),
		}).Info("Movie details saved")
		d.events.Publish(ctx, models.CrawlEvent{
			Stage: models.StageDetail, Status: models.StatusSuccess, ID: id, Title: rec.Title, URL: url, Stats: snap(stats),
		})
	}

	d.log.WithFields(logrus.Fields{
		"requested": len(ids),
		"skipped":   stats.DetailsSkipped,
		"fetched":   stats.DetailsFetched,
		"failed":    stats.DetailsFailed,
		"total":     len(collection),
	}).Info("Detail crawl complete")

	return collection
}

// fetch renders one detail page in its own browser so a hung or crashed page
// cannot affect the next id
func (d *DetailCrawler) fetch(ctx context.Context, id, url string) (rec models.DetailRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extracting %s: %v", url, p)
		}
	}()

	r, err := d.launcher.Launch(ctx)
	if err != nil {
		return rec, err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			d.log.WithField("id", id).WithError(cerr).Warn("Failed to close renderer")
		}
	}()

	doc, err := r.Render(ctx, url, d.cfg.ContentSelector)
	if err != nil {
		return rec, err
	}

	return d.extract.Detail(doc, id), nil
}

// save persists the full collection. The record was already fetched, so a
// stop arriving now must not cancel the write.
func (d *DetailCrawler) save(ctx context.Context, collection []models.DetailRecord) (err error) {
	if d.store == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("saving detail collection: %v", p)
		}
	}()
	return d.store.Save(context.WithoutCancel(ctx), collection)
}

// Identifiers returns the distinct movie ids of a catalog in order, leaving
// out entries whose id could not be parsed
func Identifiers(catalog []models.ListingEntry) []string {
	ids := make([]string, 0, len(catalog))
	seen := make(map[string]struct{}, len(catalog))
	for _, e := range catalog {
		if e.ID == "" || e.ID == models.NotAvailable {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		ids = append(ids, e.ID)
	}
	return ids
}
