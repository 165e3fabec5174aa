package models

// Action
const (
	StartScrapingAction = "start"
	StopScrapingAction  = "stop"
)

// ScrapingCommand is the command sent to the scraper worker
type ScrapingCommand struct {
	Action string `json:"action"`
	Data   Data   `json:"data,omitempty"`
}

// Data contains the page budget for a run
type Data struct {
	MaxPages int `json:"maxPages"`
}
