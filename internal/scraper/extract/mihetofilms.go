package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rizkirmdhn/filmscraper/pkg/models"
)

const (
	infoItemsSelector   = "div.card.my-5.rounded-2xl.border.border-gray-700.bg-gray-900.shadow-md.p-4 div.text-sm.text-gray-300.space-y-3 div.flex.items-center.gap-2"
	descHeadingSelector = "div.card h2.text-lg.font-semibold.text-white.mb-3"
	cardHeadingSelector = "div.card h2.text-lg.font-semibold.text-white.mb-4"
	downloadSelector    = `a[href][target="_blank"][rel="noopener noreferrer"]`
)

// Mihetofilms binds the extractors to the markup of mihetofilms.web.app
type Mihetofilms struct {
	// GridSelector matches the container holding one <a> per movie card
	GridSelector string
}

func (m Mihetofilms) Listing(doc *goquery.Document) []models.ListingEntry {
	entries := []models.ListingEntry{}

	doc.Find(m.GridSelector + " > a").Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Attr("href")
		if !ok || href == "" {
			href = models.NotAvailable
		}

		entries = append(entries, models.ListingEntry{
			ID:                    MovieID(href),
			Title:                 text(card.Find("h3")),
			ImageURL:              absURL(doc, card.Find("img"), "src"),
			DetailPageRelativeURL: href,
			UploadedTime:          text(card.Find("p.text-gray-400")),
			Subber:                text(card.Find("p.text-white.font-medium")),
		})
	})

	return entries
}

func (m Mihetofilms) Detail(doc *goquery.Document, id string) models.DetailRecord {
	rec := models.DetailRecord{
		ID:          id,
		Title:       text(doc.Find("div.title h2.text-white.text-3xl.font-bold")),
		PosterURL:   absURL(doc, doc.Find("img.rounded-full.aspect-square.object-cover"), "src"),
		Description: models.NotAvailable,
		Videos:      []models.Video{},
	}

	doc.Find(infoItemsSelector).Each(func(_ int, item *goquery.Selection) {
		label := item.Find("span.font-medium.text-gray-400")
		value := item.Find("span.text-white")
		if label.Length() == 0 || value.Length() == 0 {
			return
		}

		v := strings.TrimSpace(value.First().Text())
		switch strings.Replace(strings.TrimSpace(label.First().Text()), ":", "", 1) {
		case "Country":
			rec.Country = v
		case "Narrator":
			rec.Narrator = v
		case "Videos":
			n := parseCount(v)
			rec.NumberOfVideos = &n
		}
	})

	if heading := headingWith(doc, descHeadingSelector, "Movie Description"); heading != nil {
		rec.Description = text(heading.Next())
	}

	if heading := headingWith(doc, cardHeadingSelector, "Trailer"); heading != nil {
		status := heading.Next()
		rec.TrailerText = text(status)
		rec.TrailerAvailable = !(status.Length() > 0 && rec.TrailerText == "No trailer available")
	} else {
		rec.TrailerText = "Not found"
	}

	if heading := headingWith(doc, cardHeadingSelector, "Movie Videos"); heading != nil {
		list := heading.Next()
		if goquery.NodeName(list) == "ul" && list.HasClass("space-y-3") {
			list.Find("li.flex.items-center.justify-between").Each(func(_ int, item *goquery.Selection) {
				rec.Videos = append(rec.Videos, models.Video{
					Episode:      text(item.Find("span.text-gray-300.font-medium")),
					ThumbnailURL: absURL(doc, item.Find("img"), "src"),
					DownloadLink: absURL(doc, item.Find(downloadSelector), "href"),
				})
			})
		}
	}

	if heading := headingWith(doc, cardHeadingSelector, "Comments"); heading != nil {
		list := heading.Next()
		if goquery.NodeName(list) == "ul" {
			empty := list.Find("li.text-gray-400")
			noComments := empty.Length() > 0 && strings.TrimSpace(empty.First().Text()) == "No comments yet"
			rec.CommentsAvailable = list.Find("li").Length() > 0 && !noComments
		}
	}

	return rec
}

// headingWith returns the first heading matching selector whose text contains label
func headingWith(doc *goquery.Document, selector, label string) *goquery.Selection {
	found := doc.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), label)
	}).First()
	if found.Length() == 0 {
		return nil
	}
	return found
}
