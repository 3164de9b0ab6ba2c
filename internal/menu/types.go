// Package menu defines core types shared across the scraping pipeline.
package menu

import "time"

// Field limits applied at candidate construction time.
const (
	MaxNameLen        = 100
	MaxDescriptionLen = 500
)

// Section is one menu category page on the source site.
type Section struct {
	Name string
	URL  string
}

// ScrapedDish is a dish candidate extracted from a section page.
// Candidates that survive validation always carry a strictly positive price.
type ScrapedDish struct {
	Name        string
	Price       float64
	Description string
	ImageURL    string
	SectionName string
	SectionURL  string
}

// Category is a persisted menu category row.
type Category struct {
	ID    int64
	Name  string
	Image string
}

// Dish is a persisted dish row owned by a Category.
type Dish struct {
	ID          int64
	Name        string
	Description string
	Price       float64
	Image       string
	CategoryID  int64
	IsAvailable bool
}

// ItemStatus represents the lifecycle state of an image queue item.
type ItemStatus string

// Queue item status values persisted in the image_queue table.
const (
	StatusPending     ItemStatus = "pending"
	StatusDownloading ItemStatus = "downloading"
	StatusCompleted   ItemStatus = "completed"
	StatusFailed      ItemStatus = "failed"
	StatusSkipped     ItemStatus = "skipped"
)

// ImageQueueItem is one durable record representing a single pending or
// attempted image download tied to one dish and one source URL.
type ImageQueueItem struct {
	ID         int64
	DishID     int64
	ImageURL   string
	Status     ItemStatus
	Priority   int
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PersistOutcome summarizes one catalog write batch.
type PersistOutcome struct {
	Added             int `json:"added"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedZeroPrice  int `json:"skipped_zero_price"`
}

// CrawlOutcome summarizes a crawl-and-persist run.
type CrawlOutcome struct {
	DishesFound int `json:"dishes_found"`
	Added       int `json:"added"`
	Skipped     int `json:"skipped"`
}

// ProcessOutcome summarizes one image queue drain batch.
type ProcessOutcome struct {
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Total      int `json:"total"`
}

// QueueStats is a read projection of queue item counts per status.
type QueueStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Downloading int `json:"downloading"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
}
