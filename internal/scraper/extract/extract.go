package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
)

// ListingExtractor turns a rendered browse page into listing entries
type ListingExtractor interface {
	Listing(doc *goquery.Document) []models.ListingEntry
}

// DetailExtractor turns a rendered detail page into a record for id
type DetailExtractor interface {
	Detail(doc *goquery.Document, id string) models.DetailRecord
}

// ListingFunc adapts a function to ListingExtractor
type ListingFunc func(doc *goquery.Document) []models.ListingEntry

func (f ListingFunc) Listing(doc *goquery.Document) []models.ListingEntry { return f(doc) }

// DetailFunc adapts a function to DetailExtractor
type DetailFunc func(doc *goquery.Document, id string) models.DetailRecord

func (f DetailFunc) Detail(doc *goquery.Document, id string) models.DetailRecord { return f(doc, id) }

var movieIDPattern = regexp.MustCompile(`/details/([a-f0-9-]+)`)

// MovieID pulls the id out of a detail link, or returns models.NotAvailable
func MovieID(detailURL string) string {
	m := movieIDPattern.FindStringSubmatch(detailURL)
	if m == nil {
		return models.NotAvailable
	}
	return m[1]
}

func text(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return models.NotAvailable
	}
	return strings.TrimSpace(sel.First().Text())
}

// absURL resolves an attribute the way the browser's .src/.href properties do
func absURL(doc *goquery.Document, sel *goquery.Selection, attr string) string {
	raw, ok := sel.First().Attr(attr)
	if sel.Length() == 0 || !ok {
		return models.NotAvailable
	}
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || doc.Url == nil {
		return raw
	}
	return doc.Url.ResolveReference(ref).String()
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// parseCount mimics parseInt(value) || 0
func parseCount(value string) int {
	n, err := strconv.Atoi(leadingInt.FindString(strings.TrimSpace(value)))
	if err != nil {
		return 0
	}
	return n
}
