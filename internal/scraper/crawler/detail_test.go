package crawler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/extract"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/pacer"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/render"
	"github.com/rizkirmdhn/filmscraper/internal/scraper/store"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDetailCrawler(l render.Launcher, p pacer.Pacer, st store.Store[models.DetailRecord], sink EventSink) *DetailCrawler {
	return NewDetailCrawler(
		DetailConfig{DetailURL: detailURL, ContentSelector: testContent},
		l, extract.Mihetofilms{}, p, st, sink, testLog,
	)
}

func detailLauncher(titles map[string]string) *render.StaticLauncher {
	l := render.NewStaticLauncher()
	for id, title := range titles {
		l.Pages[detailURL(id)] = detailPage(title)
	}
	return l
}

func TestDetailCrawler_FetchesOnlyUnknownIDs(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})
	existing := []models.DetailRecord{{ID: "aaa", Title: "Alpha"}}

	got := newDetailCrawler(l, pacer.None{}, nil, nil).Crawl(context.Background(), []string{"aaa", "bbb"}, existing)

	assert.Equal(t, []string{"aaa", "bbb"}, recordIDs(got))
	assert.Equal(t, "Bravo", got[1].Title)
	assert.Equal(t, 0, l.Renders(detailURL("aaa")))
	assert.Equal(t, 1, l.Renders(detailURL("bbb")))
	assert.Equal(t, 1, l.Launches())
}

func TestDetailCrawler_SkipsFailedIDAndContinues(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "ddd": "Delta"})
	l.Failures[detailURL("ccc")] = render.ErrNavigation

	p := &countingPacer{}
	sink := &recordingSink{}
	got := newDetailCrawler(l, p, nil, sink).Crawl(context.Background(), []string{"aaa", "ccc", "ddd"}, nil)

	assert.Equal(t, []string{"aaa", "ddd"}, recordIDs(got))
	assert.Equal(t, 1, l.Renders(detailURL("ccc")))
	assert.Equal(t, 3, l.Launches())
	assert.Equal(t, l.Launches(), l.Closes())
	assert.Equal(t, 2, p.Waits())
	assert.Equal(t, []string{"detail:success", "detail:error", "detail:success"}, sink.statuses())
}

func TestDetailCrawler_MissingContentCardIsSkipped(t *testing.T) {
	l := render.NewStaticLauncher()
	l.Pages[detailURL("aaa")] = `<html><body><p>Not found</p></body></html>`

	got := newDetailCrawler(l, pacer.None{}, nil, nil).Crawl(context.Background(), []string{"aaa"}, nil)
	assert.Empty(t, got)
	assert.Equal(t, 1, l.Closes())
}

func TestDetailCrawler_SecondRunRendersNothing(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})
	c := newDetailCrawler(l, pacer.None{}, nil, nil)
	ids := []string{"aaa", "bbb"}

	first := c.Crawl(context.Background(), ids, nil)
	require.Len(t, first, 2)
	renders := l.TotalRenders()

	second := c.Crawl(context.Background(), ids, first)
	assert.Equal(t, first, second)
	assert.Equal(t, renders, l.TotalRenders())
}

func TestDetailCrawler_DuplicateIDsFetchedOnce(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha"})

	got := newDetailCrawler(l, pacer.None{}, nil, nil).Crawl(context.Background(), []string{"aaa", "aaa"}, nil)

	assert.Equal(t, []string{"aaa"}, recordIDs(got))
	assert.Equal(t, 1, l.Renders(detailURL("aaa")))
}

func TestDetailCrawler_SavesAfterEachRecord(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})
	st := store.NewFileStore[models.DetailRecord](filepath.Join(t.TempDir(), "details.json"))
	existing := []models.DetailRecord{{ID: "zzz", Title: "Zulu"}}

	saved := [][]string{}
	observer := SinkFunc(func(ctx context.Context, ev models.CrawlEvent) {
		onDisk, err := st.Load(ctx)
		require.NoError(t, err)
		saved = append(saved, recordIDs(onDisk))
	})

	got := newDetailCrawler(l, pacer.None{}, st, observer).Crawl(context.Background(), []string{"aaa", "bbb"}, existing)

	assert.Equal(t, [][]string{{"zzz", "aaa"}, {"zzz", "aaa", "bbb"}}, saved)

	onDisk, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, onDisk)
}

func TestDetailCrawler_SaveFailureKeepsEarlierRecordsOnDisk(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo", "ccc": "Charlie", "ddd": "Delta"})
	inner := store.NewFileStore[models.DetailRecord](filepath.Join(t.TempDir(), "details.json"))
	st := &flakyStore[models.DetailRecord]{inner: inner, failFrom: 3}

	got := newDetailCrawler(l, pacer.None{}, st, nil).Crawl(context.Background(), []string{"aaa", "bbb", "ccc", "ddd"}, nil)

	assert.Equal(t, []string{"aaa", "bbb", "ccc", "ddd"}, recordIDs(got))
	assert.Equal(t, 4, st.saves)

	onDisk, err := inner.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa", "bbb"}, recordIDs(onDisk))
}

func TestDetailCrawler_LaunchFailureSkipsOnlyThatID(t *testing.T) {
	l := &flakyLauncher{
		StaticLauncher: detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"}),
		failOn:         map[int]bool{1: true},
	}

	got := newDetailCrawler(l, pacer.None{}, nil, nil).Crawl(context.Background(), []string{"aaa", "bbb"}, nil)

	assert.Equal(t, []string{"bbb"}, recordIDs(got))
	assert.Equal(t, 0, l.Renders(detailURL("aaa")))
}

func TestDetailCrawler_ExtractorPanicSkipsID(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})

	boom := extract.DetailFunc(func(doc *goquery.Document, id string) models.DetailRecord {
		if id == "aaa" {
			panic("nil selection")
		}
		return extract.Mihetofilms{}.Detail(doc, id)
	})
	c := NewDetailCrawler(
		DetailConfig{DetailURL: detailURL, ContentSelector: testContent},
		l, boom, pacer.None{}, nil, nil, testLog,
	)

	var got []models.DetailRecord
	require.NotPanics(t, func() { got = c.Crawl(context.Background(), []string{"aaa", "bbb"}, nil) })
	assert.Equal(t, []string{"bbb"}, recordIDs(got))
	assert.Equal(t, 2, l.Closes())
}

func TestDetailCrawler_StopsWhenContextCanceled(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := SinkFunc(func(context.Context, models.CrawlEvent) { cancel() })

	got := newDetailCrawler(l, pacer.None{}, nil, stop).Crawl(ctx, []string{"aaa", "bbb"}, nil)

	assert.Equal(t, []string{"aaa"}, recordIDs(got))
	assert.Equal(t, 0, l.Renders(detailURL("bbb")))
}

func TestIdentifiers(t *testing.T) {
	catalog := []models.ListingEntry{
		{ID: "aaa", Title: "Alpha"},
		{ID: models.NotAvailable, Title: "Broken"},
		{ID: "bbb", Title: "Bravo"},
		{ID: "aaa", Title: "Alpha (HD)"},
		{ID: "", Title: "Empty"},
	}

	assert.Equal(t, []string{"aaa", "bbb"}, Identifiers(catalog))
	assert.Empty(t, Identifiers(nil))
}

func TestDetailCrawler_RatePacingDelaysSecondFetch(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})

	const gap = 150 * time.Millisecond
	c := newDetailCrawler(l, pacer.New("rate", gap), nil, nil)

	start := time.Now()
	got := c.Crawl(context.Background(), []string{"aaa", "bbb"}, nil)

	assert.Len(t, got, 2)
	assert.GreaterOrEqual(t, time.Since(start), gap-20*time.Millisecond)
}

func TestDetailCrawler_PanickingStoreDoesNotStopCrawl(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})
	c := newDetailCrawler(l, pacer.None{}, explodingStore[models.DetailRecord]{}, nil)

	var got []models.DetailRecord
	require.NotPanics(t, func() { got = c.Crawl(context.Background(), []string{"aaa", "bbb"}, nil) })
	assert.Equal(t, []string{"aaa", "bbb"}, recordIDs(got))
}

func TestDetailCrawler_PanickingSinkKeepsFetchedRecords(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})
	sink := SinkFunc(func(_ context.Context, ev models.CrawlEvent) {
		if ev.ID == "bbb" {
			panic("websocket gone")
		}
	})
	existing := []models.DetailRecord{{ID: "zzz", Title: "Zulu"}}

	var got []models.DetailRecord
	require.NotPanics(t, func() {
		got = newDetailCrawler(l, pacer.None{}, nil, sink).Crawl(context.Background(), []string{"aaa", "bbb"}, existing)
	})
	assert.Equal(t, []string{"zzz", "aaa", "bbb"}, recordIDs(got))
}

func TestDetailCrawler_SavesRecordDespiteStop(t *testing.T) {
	l := detailLauncher(map[string]string{"aaa": "Alpha", "bbb": "Bravo"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopDuringExtract := extract.DetailFunc(func(doc *goquery.Document, id string) models.DetailRecord {
		cancel()
		return extract.Mihetofilms{}.Detail(doc, id)
	})

	inner := store.NewFileStore[models.DetailRecord](filepath.Join(t.TempDir(), "details.json"))
	st := &ctxCheckingStore[models.DetailRecord]{inner: inner}
	c := NewDetailCrawler(
		DetailConfig{DetailURL: detailURL, ContentSelector: testContent},
		l, stopDuringExtract, pacer.None{}, st, nil, testLog,
	)

	got := c.Crawl(ctx, []string{"aaa", "bbb"}, nil)
	assert.Equal(t, []string{"aaa"}, recordIDs(got))

	require.Len(t, st.ctxErrs, 1)
	assert.NoError(t, st.ctxErrs[0])

	onDisk, err := inner.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa"}, recordIDs(onDisk))
}

func TestDetailCrawler_ReportsSkippedIDs(t *testing.T) {
	l := detailLauncher(map[string]string{"bbb": "Bravo"})
	existing := []models.DetailRecord{{ID: "aaa", Title: "Alpha"}}

	sink := &recordingSink{}
	newDetailCrawler(l, pacer.None{}, nil, sink).Crawl(context.Background(), []string{"aaa", "bbb"}, existing)

	assert.Equal(t, []string{"detail:skipped", "detail:success"}, sink.statuses())
	assert.Equal(t, "aaa", sink.events[0].ID)
	assert.Equal(t, 1, sink.events[0].Stats.DetailsSkipped)
}
