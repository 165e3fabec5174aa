package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLauncher_RenderAndCounts(t *testing.T) {
	l := NewStaticLauncher()
	l.Pages["https://example.test/a"] = `<html><body><div class="grid"><a href="/x">x</a></div></body></html>`

	r, err := l.Launch(context.Background())
	require.NoError(t, err)

	doc, err := r.Render(context.Background(), "https://example.test/a", "div.grid")
	require.NoError(t, err)
	assert.Equal(t, "example.test", doc.Url.Host)
	assert.Equal(t, 1, doc.Find("div.grid > a").Length())

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Equal(t, 1, l.Launches())
	assert.Equal(t, 1, l.Closes())
	assert.Equal(t, 1, l.Renders("https://example.test/a"))
	assert.Equal(t, 1, l.TotalRenders())
}

func TestStaticLauncher_Errors(t *testing.T) {
	l := NewStaticLauncher()
	l.Pages["https://example.test/empty"] = `<html><body></body></html>`
	l.Failures["https://example.test/slow"] = ErrNavigation

	r, err := l.Launch(context.Background())
	require.NoError(t, err)

	_, err = r.Render(context.Background(), "https://example.test/empty", "div.grid")
	assert.ErrorIs(t, err, ErrSelector)

	_, err = r.Render(context.Background(), "https://example.test/slow", "div.grid")
	assert.ErrorIs(t, err, ErrNavigation)

	_, err = r.Render(context.Background(), "https://example.test/missing", "div.grid")
	assert.ErrorIs(t, err, ErrNavigation)

	l.LaunchErr = errors.New("no chrome")
	_, err = l.Launch(context.Background())
	assert.ErrorIs(t, err, ErrLaunch)
}
