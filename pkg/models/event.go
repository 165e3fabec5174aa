package models

// Crawl stages
const (
	StageCatalog = "catalog"
	StageDetail  = "detail"
	StageRun     = "run"
)

// Event statuses
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "error"
	StatusEnd     = "end"
	StatusDone    = "done"
)

// Stats represents the running counters of a crawl
type Stats struct {
	PagesScraped   int `json:"pages_scraped"`
	NewEntries     int `json:"new_entries"`
	DetailsFetched int `json:"details_fetched"`
	DetailsSkipped int `json:"details_skipped"`
	DetailsFailed  int `json:"details_failed"`
}

// CrawlEvent is a progress message emitted while crawling
type CrawlEvent struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Page   int    `json:"page,omitempty"`
	ID     string `json:"id,omitempty"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
	Stats  *Stats `json:"stats,omitempty"`
}

// RunSummary is reported after a full catalog + detail run
type RunSummary struct {
	NewEntries     int `json:"newEntries"`
	CatalogSize    int `json:"catalogSize"`
	TotalProcessed int `json:"totalProcessed"`
	TotalSaved     int `json:"totalSaved"`
}
