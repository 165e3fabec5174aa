package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/messaging"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/service"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/internal/web/websocket"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

const welcomeMessage = "Welcome to the Movie Scraper API! Send a GET request to /api/scrape to start scraping."

// Runner runs the scrape pipeline in process
type Runner interface {
	Run(ctx context.Context, maxPages int) (*models.RunSummary, error)
}

type Handler struct {
	cfg     *config.Config
	log     *logrus.Logger
	runner  Runner
	catalog store.Store[models.ListingEntry]
	details store.Store[models.DetailRecord]
	message messaging.Client
	wsHub   *websocket.Hub
}

// NewHandler creates the HTTP handlers. msg may be nil, in which case the
// worker commands answer 503.
func NewHandler(cfg *config.Config, log *logrus.Logger, runner Runner, catalog store.Store[models.ListingEntry],
	details store.Store[models.DetailRecord], msg messaging.Client, hub *websocket.Hub) *Handler {
	return &Handler{
		cfg:     cfg,
		log:     log,
		runner:  runner,
		catalog: catalog,
		details: details,
		message: msg,
		wsHub:   hub,
	}
}

// RegisterRoutes registers all the routes for the web handler
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(CORS())

	r.GET("/", h.IndexHandler())
	r.GET("/ws", websocket.WebSocketHandler(h.wsHub, h.log))

	api := r.Group("/api")
	{
		api.GET("/scrape", h.ScrapeHandler())
		api.POST("/scrape", h.ScrapeHandler())
		api.GET("/catalog", h.CatalogHandler())
		api.GET("/details", h.DetailsHandler())
		api.POST("/start", h.StartScraperHandler())
		api.POST("/stop", h.StopScraperHandler())
	}
}

// CORS allows the panel and other browser clients from any origin
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}

// IndexHandler answers with a plain welcome text
func (h *Handler) IndexHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, welcomeMessage)
	}
}

// ScrapeHandler runs the whole pipeline synchronously and reports counts
func (h *Handler) ScrapeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		maxPages := 0
		if raw := c.Query("maxPages"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "maxPages must be a positive integer",
				})
				return
			}
			maxPages = n
		}

		h.wsHub.BroadcastStatus("Scraping process started", "info")

		// A client hanging up must not abort a half finished run
		summary, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), maxPages)
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			h.log.WithField("component", "web_handler").WithError(err).Error("Scraping failed")
			h.wsHub.BroadcastStatus("Scraping failed: "+err.Error(), "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		h.wsHub.BroadcastStatus("Scraping process finished", "info")
		c.JSON(http.StatusOK, summary)
	}
}

// CatalogHandler returns the persisted catalog
func (h *Handler) CatalogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := h.catalog.Load(c.Request.Context())
		if err != nil {
			h.log.WithField("component", "web_handler").WithError(err).Error("Failed to load catalog")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load catalog"})
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// DetailsHandler returns the persisted detail collection
func (h *Handler) DetailsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := h.details.Load(c.Request.Context())
		if err != nil {
			h.log.WithField("component", "web_handler").WithError(err).Error("Failed to load details")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load details"})
			return
		}
		c.JSON(http.StatusOK, records)
	}
}

// StartScraperHandler asks the worker to start a run
func (h *Handler) StartScraperHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.message == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Messaging is not configured"})
			return
		}

		var req struct {
			MaxPages int `json:"maxPages"`
		}
		// An empty body means the worker's default page budget
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
				return
			}
		}
		if req.MaxPages < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "maxPages must not be negative"})
			return
		}

		command := models.ScrapingCommand{
			Action: models.StartScrapingAction,
			Data:   models.Data{MaxPages: req.MaxPages},
		}
		if err := h.publishCommand(c.Request.Context(), command); err != nil {
			h.log.WithField("component", "web_handler").WithError(err).Error("Failed to publish start command")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start scraper"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "Scraper started successfully",
			"maxPages": req.MaxPages,
		})
		h.wsHub.BroadcastStatus("Scraping process started", "info")
	}
}

// StopScraperHandler asks the worker to stop the active run
func (h *Handler) StopScraperHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.message == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Messaging is not configured"})
			return
		}

		command := models.ScrapingCommand{Action: models.StopScrapingAction}
		if err := h.publishCommand(c.Request.Context(), command); err != nil {
			h.log.WithField("component", "web_handler").WithError(err).Error("Failed to publish stop command")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to stop scraper"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Scraper stopped successfully"})
		h.wsHub.BroadcastStatus("Scraping process stopped", "info")
	}
}

// publishCommand publishes a command to the scraper command routing key
func (h *Handler) publishCommand(ctx context.Context, command models.ScrapingCommand) error {
	return h.message.PublishJSON(ctx, config.RoutingCommandScraper, command)
}

// ConsumeLogs relays crawl events published by the worker to websocket
// clients until ctx is done
func (h *Handler) ConsumeLogs(ctx context.Context) error {
	if h.message == nil {
		return nil
	}

	queue := h.cfg.RabbitMq.Queue.Log
	if err := h.message.DeclareQueue(queue); err != nil {
		return err
	}
	if err := h.message.BindQueue(queue, config.RoutingLogScraper); err != nil {
		return err
	}

	return h.message.Consume(ctx, queue, h.relayLog)
}

func (h *Handler) relayLog(message []byte, routingKey string) error {
	if routingKey != config.RoutingLogScraper {
		return nil
	}

	var ev models.CrawlEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		// Redelivering a malformed event would never succeed
		h.log.WithField("component", "web_handler").WithError(err).Error("Failed to unmarshal crawl event")
		return nil
	}

	h.log.WithFields(logrus.Fields{
		"component": "web_handler",
		"stage":     ev.Stage,
		"status":    ev.Status,
	}).Debug("Relaying crawl event to WebSocket clients")
	h.wsHub.Publish(context.Background(), ev)
	return nil
}
