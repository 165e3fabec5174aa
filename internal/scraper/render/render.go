package render

import (
	"context"
	"errors"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrLaunch wraps failures to start a browser
	ErrLaunch = errors.New("renderer launch failed")
	// ErrNavigation wraps failures to load a page within the navigation timeout
	ErrNavigation = errors.New("navigation failed")
	// ErrSelector wraps failures to find the awaited selector within its timeout
	ErrSelector = errors.New("selector not found")
)

// Renderer loads a URL in a browser and returns the rendered DOM
type Renderer interface {
	// Render navigates to url, blocks until waitSelector is present and
	// returns a snapshot of the document. doc.Url is set to url.
	Render(ctx context.Context, url, waitSelector string) (*goquery.Document, error)
	Close() error
}

// Launcher acquires renderers
type Launcher interface {
	Launch(ctx context.Context) (Renderer, error)
}
