package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/extract"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/pacer"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	CatalogFile = "catalog.json"
	DetailFile  = "details.json"
)

// blockedResources keeps the browser from downloading artwork; the crawlers
// only read the image URLs
var blockedResources = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp"}

// Stores opens the catalog and detail stores of the configured backend. The
// returned close func releases the backend connection.
func Stores(ctx context.Context, cfg *config.Config) (store.Store[models.ListingEntry], store.Store[models.DetailRecord], func() error, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		return store.NewRedisStore[models.ListingEntry](rdb, cfg.Store.CatalogKey),
			store.NewRedisStore[models.DetailRecord](rdb, cfg.Store.DetailKey),
			rdb.Close, nil

	default:
		return store.NewFileStore[models.ListingEntry](filepath.Join(cfg.Store.Dir, CatalogFile)),
			store.NewFileStore[models.DetailRecord](filepath.Join(cfg.Store.Dir, DetailFile)),
			func() error { return nil }, nil
	}
}

// NewOptions wires the production collaborators: Chrome, the mihetofilms
// extractors and the configured pacing
func NewOptions(cfg *config.Config, log *logrus.Logger, catalog store.Store[models.ListingEntry], details store.Store[models.DetailRecord]) Options {
	sc := cfg.GetScraperConfig()
	site := extract.Mihetofilms{GridSelector: sc.GridSelector}

	return Options{
		Launcher: render.NewChromeLauncher(render.ChromeOptions{
			UserAgent:         sc.UserAgent,
			Headless:          sc.Headless,
			NavigationTimeout: sc.NavigationTimeout,
			SelectorTimeout:   sc.SelectorTimeout,
			BlockedURLs:       blockedResources,
		}, log),
		Listing:      site,
		Detail:       site,
		CatalogStore: catalog,
		DetailStore:  details,
		PagePacer:    pacer.New(sc.Pacing, sc.PageDelay),
		ItemPacer:    pacer.New(sc.Pacing, sc.ItemDelay),
	}
}
