package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// Exchange name
	ExchangeName = "filmscraper"

	// Routing Keys
	RoutingCommandScraper = "command.scraper"
	RoutingLogScraper     = "log.scraper"

	// Exchange Type
	ExchangeTypeTopic = "topic"

	// Store backends
	StoreBackendFile  = "file"
	StoreBackendRedis = "redis"

	// Pacing modes
	PacingFixed = "fixed"
	PacingRate  = "rate"
)

// Config is the struct that holds the configuration of the application
type Config struct {
	App      AppConfig      `json:"app"`
	RabbitMq RabbitMQConfig `json:"rabbitmq"`
	Scraper  ScraperConfig  `json:"scraper"`
	Store    StoreConfig    `json:"store"`
	Redis    RedisConfig    `json:"redis"`
	WebPanel WebPanelConfig `json:"webpanel"`
}

type AppConfig struct {
	Name     string `json:"name"`
	LogLevel int    `json:"logLevel"`
	Env      string `json:"env"`
}

type RabbitMQConfig struct {
	URL              string     `json:"url"`
	Exchange         string     `json:"exchange"`
	Queue            QueueNames `json:"queue"`
	ReconnectRetries int        `json:"reconnectRetries"`
	ReconnectTimeout int        `json:"reconnectTimeout"`
}

type QueueNames struct {
	Scraper string `json:"scraper"`
	Log     string `json:"log"`
}

// ScraperConfig holds everything the crawlers need. ListingURL takes the page
// number through %d and DetailURL the movie id through %s.
type ScraperConfig struct {
	Host              string        `json:"host"`
	ListingURL        string        `json:"listingUrl"`
	DetailURL         string        `json:"detailUrl"`
	MaxPages          int           `json:"maxPages"`
	UserAgent         string        `json:"userAgent"`
	Headless          bool          `json:"headless"`
	Pacing            string        `json:"pacing"`
	PageDelay         time.Duration `json:"pageDelay"`
	ItemDelay         time.Duration `json:"itemDelay"`
	NavigationTimeout time.Duration `json:"navigationTimeout"`
	SelectorTimeout   time.Duration `json:"selectorTimeout"`
	GridSelector      string        `json:"gridSelector"`
	DetailSelector    string        `json:"detailSelector"`
}

type StoreConfig struct {
	Backend    string `json:"backend"`
	Dir        string `json:"dir"`
	CatalogKey string `json:"catalogKey"`
	DetailKey  string `json:"detailKey"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type WebPanelConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "filmscraper")
	v.SetDefault("app.logLevel", 4)
	v.SetDefault("app.env", "development")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", ExchangeName)
	v.SetDefault("rabbitmq.queue.scraper", "scraper_queue")
	v.SetDefault("rabbitmq.queue.log", "log_queue")
	v.SetDefault("rabbitmq.reconnectRetries", 5)
	v.SetDefault("rabbitmq.reconnectTimeout", 2000)

	v.SetDefault("scraper.host", "https://mihetofilms.web.app")
	v.SetDefault("scraper.listingUrl", "/browse?genre=All&page=%d")
	v.SetDefault("scraper.detailUrl", "/details/%s")
	v.SetDefault("scraper.maxPages", 50)
	v.SetDefault("scraper.userAgent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.pacing", PacingFixed)
	v.SetDefault("scraper.pageDelay", "1500ms")
	v.SetDefault("scraper.itemDelay", "2s")
	v.SetDefault("scraper.navigationTimeout", "100s")
	v.SetDefault("scraper.selectorTimeout", "50s")
	v.SetDefault("scraper.gridSelector", `.grid.grid-cols-3.md\:grid-cols-4.lg\:grid-cols-6.gap-4`)
	v.SetDefault("scraper.detailSelector", `section[aria-label="Movie Info and Media"] div.card`)

	v.SetDefault("store.backend", StoreBackendFile)
	v.SetDefault("store.dir", "data")
	v.SetDefault("store.catalogKey", "filmscraper:catalog")
	v.SetDefault("store.detailKey", "filmscraper:details")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("webpanel.host", "0.0.0.0")
	v.SetDefault("webpanel.port", 4000)
}

// Load config from config.json, a local .env file and the environment
func Load() (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config") // File name without extension
	v.SetConfigType("json")   // Set to JSON format
	v.AddConfigPath(".")      // Look for config file in current directory
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	// Try to read configuration file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal JSON to Config struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override from environment variables if available
	if envURL := os.Getenv("RABBITMQ_URL"); envURL != "" {
		config.RabbitMq.URL = envURL
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the values the crawlers cannot run without
func (c *Config) Validate() error {
	if c.Scraper.MaxPages <= 0 {
		return fmt.Errorf("scraper.maxPages must be positive, got %d", c.Scraper.MaxPages)
	}
	if !strings.Contains(c.Scraper.ListingURL, "%d") {
		return fmt.Errorf("scraper.listingUrl must contain %%d, got %q", c.Scraper.ListingURL)
	}
	if !strings.Contains(c.Scraper.DetailURL, "%s") {
		return fmt.Errorf("scraper.detailUrl must contain %%s, got %q", c.Scraper.DetailURL)
	}
	switch c.Scraper.Pacing {
	case PacingFixed, PacingRate:
	default:
		return fmt.Errorf("unknown scraper.pacing %q", c.Scraper.Pacing)
	}
	switch c.Store.Backend {
	case StoreBackendFile, StoreBackendRedis:
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	return nil
}

// ListingPageURL returns the absolute browse URL for a page number
func (c *ScraperConfig) ListingPageURL(page int) string {
	return strings.TrimRight(c.Host, "/") + fmt.Sprintf(c.ListingURL, page)
}

// DetailPageURL returns the absolute detail URL for a movie id
func (c *ScraperConfig) DetailPageURL(id string) string {
	return strings.TrimRight(c.Host, "/") + fmt.Sprintf(c.DetailURL, id)
}

// Get config for app
func (c *Config) GetAppConfig() *AppConfig {
	return &c.App
}

// Get config for scraping
func (c *Config) GetScraperConfig() *ScraperConfig {
	return &c.Scraper
}

// Get config for storage
func (c *Config) GetStoreConfig() *StoreConfig {
	return &c.Store
}

// Get config for web panel
func (c *Config) GetWebPanelConfig() *WebPanelConfig {
	return &c.WebPanel
}

// Get config for RabbitMQ
func (c *Config) GetRabbitMQConfig() *RabbitMQConfig {
	return &c.RabbitMq
}
