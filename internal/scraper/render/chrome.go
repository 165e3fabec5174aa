package render

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ChromeOptions configures the headless browser
type ChromeOptions struct {
	UserAgent         string
	Headless          bool
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	// BlockedURLs are never fetched; matched by the browser's URL patterns
	BlockedURLs []string
}

// ChromeLauncher starts a fresh Chrome process per Launch
type ChromeLauncher struct {
	opts ChromeOptions
	log  *logrus.Logger
}

func NewChromeLauncher(opts ChromeOptions, log *logrus.Logger) *ChromeLauncher {
	return &ChromeLauncher{opts: opts, log: log}
}

// Launch starts the browser and opens a blank tab. The returned renderer owns
// the process until Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Renderer, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(l.opts.UserAgent),
		chromedp.Flag("headless", l.opts.Headless),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.log.Printf))

	// The first Run starts the browser
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	return &chromeRenderer{
		ctx:           browserCtx,
		cancelBrowser: browserCancel,
		cancelAlloc:   allocCancel,
		opts:          l.opts,
	}, nil
}

type chromeRenderer struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	opts          ChromeOptions
}

func (r *chromeRenderer) Render(ctx context.Context, rawURL, waitSelector string) (*goquery.Document, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url %q: %v", ErrNavigation, rawURL, err)
	}

	// Stop waiting as soon as either the caller or the browser goes away
	runCtx, stop := context.WithCancel(r.ctx)
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-runCtx.Done():
		}
	}()

	navCtx, navCancel := context.WithTimeout(runCtx, r.opts.NavigationTimeout)
	defer navCancel()

	actions := []chromedp.Action{network.Enable()}
	if len(r.opts.BlockedURLs) > 0 {
		actions = append(actions, network.SetBlockedURLS(r.opts.BlockedURLs))
	}
	actions = append(actions, chromedp.Navigate(rawURL))

	if err := chromedp.Run(navCtx, actions...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNavigation, rawURL, err)
	}

	waitCtx, waitCancel := context.WithTimeout(runCtx, r.opts.SelectorTimeout)
	defer waitCancel()

	var html string
	if err := chromedp.Run(waitCtx,
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("%w: %q on %s: %v", ErrSelector, waitSelector, rawURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rendered html: %w", err)
	}
	doc.Url = pageURL

	return doc, nil
}

func (r *chromeRenderer) Close() error {
	// Cancelling the browser context closes the tab, the allocator kills the process
	r.cancelBrowser()
	r.cancelAlloc()
	return nil
}
