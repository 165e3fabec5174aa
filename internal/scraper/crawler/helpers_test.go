package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
)

const (
	testGrid    = "div.grid"
	testContent = "section.content"
)

var testLog = logger.Discard()

func listingURL(page int) string {
	return fmt.Sprintf("https://site.test/browse?genre=All&page=%d", page)
}

func detailURL(id string) string {
	return "https://site.test/details/" + id
}

// card is a (id, title) pair rendered into a browse page
type card struct{ id, title string }

func browsePage(cards ...card) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="grid">`)
	for _, c := range cards {
		fmt.Fprintf(&b, `<a href="/details/%s"><img src="/img/%s.jpg"><h3>%s</h3></a>`, c.id, c.id, c.title)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func detailPage(title string) string {
	return `<html><body><section class="content"><div class="card"><div class="title">` +
		`<h2 class="text-white text-3xl font-bold">` + title + `</h2></div></div></section></body></html>`
}

// countingPacer records how often the crawler paced itself
type countingPacer struct {
	mu    sync.Mutex
	waits int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *countingPacer) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

// flakyStore starts failing from the failFrom-th Save on
type flakyStore[T any] struct {
	inner   store.Store[T]
	failFrom int
	saves    int
}

var errDiskFull = errors.New("disk full")

func (s *flakyStore[T]) Load(ctx context.Context) ([]T, error) {
	return s.inner.Load(ctx)
}

func (s *flakyStore[T]) Save(ctx context.Context, items []T) error {
	s.saves++
	if s.failFrom > 0 && s.saves >= s.failFrom {
		return errDiskFull
	}
	return s.inner.Save(ctx, items)
}

// flakyLauncher fails the launches whose 1-based index is listed
type flakyLauncher struct {
	*render.StaticLauncher
	failOn map[int]bool
	calls  int
}

func (l *flakyLauncher) Launch(ctx context.Context) (render.Renderer, error) {
	l.calls++
	if l.failOn[l.calls] {
		return nil, fmt.Errorf("%w: chrome crashed", render.ErrLaunch)
	}
	return l.StaticLauncher.Launch(ctx)
}

// recordingSink keeps every published event
type recordingSink struct {
	mu     sync.Mutex
	events []models.CrawlEvent
}

func (s *recordingSink) Publish(_ context.Context, ev models.CrawlEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Stage+":"+ev.Status)
	}
	return out
}

func titles(entries []models.ListingEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Title)
	}
	return out
}

func recordIDs(records []models.DetailRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

// explodingLauncher panics instead of starting a browser
type explodingLauncher struct{}

func (explodingLauncher) Launch(context.Context) (render.Renderer, error) {
	panic("chrome binary vanished")
}

// explodingStore panics on every Save
type explodingStore[T any] struct{}

func (explodingStore[T]) Load(context.Context) ([]T, error) { return []T{}, nil }

func (explodingStore[T]) Save(context.Context, []T) error { panic("encoder blew up") }

// ctxCheckingStore records whether Save saw a live context
type ctxCheckingStore[T any] struct {
	inner   store.Store[T]
	ctxErrs []error
}

func (s *ctxCheckingStore[T]) Load(ctx context.Context) ([]T, error) {
	return s.inner.Load(ctx)
}

func (s *ctxCheckingStore[T]) Save(ctx context.Context, items []T) error {
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Save(ctx, items)
}
