package service

import (
	"context"
	"time"

	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/common/messaging"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// BrokerSink forwards crawl events to the log routing key so the web panel
// can relay them
type BrokerSink struct {
	message messaging.Client
	log     *logger.ComponentLogger
}

func NewBrokerSink(msg messaging.Client, log *logrus.Logger) *BrokerSink {
	return &BrokerSink{
		message: msg,
		log:     logger.NewComponentLogger(log, "event_publisher"),
	}
}

func (b *BrokerSink) Publish(ctx context.Context, ev models.CrawlEvent) {
	// Events of a stopped run are still worth delivering
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := b.message.PublishJSON(ctx, config.RoutingLogScraper, ev); err != nil {
		b.log.WithFields(logrus.Fields{
			"stage":  ev.Stage,
			"status": ev.Status,
		}).WithError(err).Warn("Failed to publish crawl event")
	}
}
