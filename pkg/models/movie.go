package models

// NotAvailable marks a field the page did not provide
const NotAvailable = "N/A"

// ListingEntry represents one movie card on a browse page
type ListingEntry struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	ImageURL              string `json:"imageUrl"`
	DetailPageRelativeURL string `json:"detailPageRelativeUrl"`
	UploadedTime          string `json:"uploadedTime"`
	Subber                string `json:"subber"`
}

// DetailRecord represents everything extracted from a movie detail page
type DetailRecord struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	PosterURL         string  `json:"posterUrl"`
	Country           string  `json:"country,omitempty"`
	Narrator          string  `json:"narrator,omitempty"`
	NumberOfVideos    *int    `json:"numberOfVideos,omitempty"`
	Description       string  `json:"description"`
	TrailerAvailable  bool    `json:"trailerAvailable"`
	TrailerText       string  `json:"trailerText"`
	Videos            []Video `json:"videos"`
	CommentsAvailable bool    `json:"commentsAvailable"`
}

// Video is a single episode listed on a detail page
type Video struct {
	Episode      string `json:"episode"`
	ThumbnailURL string `json:"thumbnailUrl"`
	DownloadLink string `json:"downloadLink"`
}
