package crawler

import (
	"context"

	"github.com/rizkirmdhn/filmscraper/pkg/models"
)

// EventSink receives progress events. Implementations handle their own
// delivery errors; a crawl never fails because an event was lost.
type EventSink interface {
	Publish(ctx context.Context, ev models.CrawlEvent)
}

// Discard drops every event
type Discard struct{}

func (Discard) Publish(context.Context, models.CrawlEvent) {}

// MultiSink fans an event out to several sinks
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, ev models.CrawlEvent) {
	for _, s := range m {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ctx context.Context, ev models.CrawlEvent)

func (f SinkFunc) Publish(ctx context.Context, ev models.CrawlEvent) { f(ctx, ev) }

func sinkOrDiscard(s EventSink) EventSink {
	if s == nil {
		return Discard{}
	}
	return s
}

// snap copies the running counters so published events don't change later
func snap(s *models.Stats) *models.Stats {
	c := *s
	return &c
}
