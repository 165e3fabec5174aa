package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// StaticLauncher serves canned HTML instead of driving a browser. It counts
// every launch, render and close so callers can assert on browser usage.
type StaticLauncher struct {
	mu sync.Mutex

	// Pages maps absolute URLs to HTML
	Pages map[string]string
	// Failures maps absolute URLs to the error Render returns for them
	Failures map[string]error
	// LaunchErr, when set, makes every Launch fail
	LaunchErr error

	launches int
	closes   int
	renders  map[string]int
}

func NewStaticLauncher() *StaticLauncher {
	return &StaticLauncher{
		Pages:    map[string]string{},
		Failures: map[string]error{},
		renders:  map[string]int{},
	}
}

func (l *StaticLauncher) Launch(_ context.Context) (Renderer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.LaunchErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, l.LaunchErr)
	}
	l.launches++
	return &staticRenderer{l: l}, nil
}

// Launches returns how many renderers were handed out
func (l *StaticLauncher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// Closes returns how many renderers were closed
func (l *StaticLauncher) Closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes
}

// Renders returns how many times url was rendered
func (l *StaticLauncher) Renders(url string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renders[url]
}

// TotalRenders returns the number of Render calls across all URLs
func (l *StaticLauncher) TotalRenders() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.renders {
		total += n
	}
	return total
}

type staticRenderer struct {
	l      *StaticLauncher
	closed bool
}

func (r *staticRenderer) Render(ctx context.Context, rawURL, waitSelector string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNavigation, err)
	}

	r.l.mu.Lock()
	r.l.renders[rawURL]++
	failure := r.l.Failures[rawURL]
	html, ok := r.l.Pages[rawURL]
	r.l.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if !ok {
		return nil, fmt.Errorf("%w: no page for %s", ErrNavigation, rawURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	if doc.Url, err = url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrNavigation, rawURL, err)
	}
	if doc.Find(waitSelector).Length() == 0 {
		return nil, fmt.Errorf("%w: %q on %s", ErrSelector, waitSelector, rawURL)
	}
	return doc, nil
}

func (r *staticRenderer) Close() error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	if !r.closed {
		r.closed = true
		r.l.closes++
	}
	return nil
}
