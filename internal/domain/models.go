package domain

import "time"

// ProductURL pairs an absolute product URL with the category it was
// discovered under. The URL string is the uniqueness key; a product seen in
// several categories keeps the first category observed.
type ProductURL struct {
	URL      string
	Category string
}

// Price holds a normalized price field. Exactly one of Single or the
// Min/Max pair is populated; all nil means the source field was absent.
type Price struct {
	Single *float64
	Min    *float64
	Max    *float64
}

// IsRange reports whether the price was scraped as a min–max range.
func (p Price) IsRange() bool {
	return p.Min != nil && p.Max != nil
}

// Origin is the binary country-of-origin classification.
type Origin string

const (
	OriginDomestic Origin = "slovakia"
	OriginForeign  Origin = "foreign"
)

// RawRetailerRecord is the unnormalized field set scraped from one
// retailer's panel on a product page. Optional attributes are empty strings
// when the panel does not carry the label.
type RawRetailerRecord struct {
	Retailer        string
	PriceWithVAT    string
	PriceWithoutVAT string
	UnitPrice       string
	DiscountText    string
	PackageSize     string
	VATRate         string
	CountryOfOrigin string
	Producer        string
	Distributor     string
	ProductName     string
	ProductURL      string
	Category        string
}

// RetailerRecord is a RawRetailerRecord with prices, VAT rate, discount date
// and origin resolved to typed values.
type RetailerRecord struct {
	Retailer        string
	ProductName     string
	ProductURL      string
	Category        string
	PriceWithVAT    Price
	PriceWithoutVAT Price
	UnitPrice       Price
	Unit            string
	VATRate         *float64
	DiscountEndDate *time.Time
	PackageSize     string
	Origin          Origin
	Producer        string
	Distributor     string
}

// FetchOutcome is the result of one worker's attempt at a product URL.
type FetchOutcome struct {
	URL     ProductURL
	Records []RetailerRecord
	Err     error
}

// Success reports whether the attempt produced at least one retailer record.
func (o FetchOutcome) Success() bool {
	return o.Err == nil && len(o.Records) > 0
}

// HarvestResult is the final output of one harvest run.
type HarvestResult struct {
	// Products holds one record set per successfully extracted product.
	Products [][]RetailerRecord
	// Attempted is the number of distinct product URLs after deduplication.
	Attempted int
	// Duplicates is the number of cross-category duplicates collapsed.
	Duplicates int
	// Waves is the number of fetch/retry passes executed.
	Waves int
	// FailedURLs lists the URLs that failed every wave.
	FailedURLs []ProductURL
	// SuccessRatio = len(Products) / Attempted.
	SuccessRatio float64
}

// RunSummary is the persisted bookkeeping record for a finished run.
type RunSummary struct {
	FinishedAt   time.Time `json:"finished_at"`
	Products     int       `json:"products"`
	Attempted    int       `json:"attempted"`
	Waves        int       `json:"waves"`
	SuccessRatio float64   `json:"success_ratio"`
	FailedURLs   []string  `json:"failed_urls,omitempty"`
}
