// Package insights reads ad-platform delivery metrics (spend, impressions,
// clicks) from the analytics warehouse. The matchers never consult it; only
// blended reporting joins against it.
package insights

// Config holds the warehouse connection settings.
type Config struct {
	Account   string
	User      string
	Password  string
	Database  string
	Schema    string
	Warehouse string
}

// CampaignSpend holds delivery metrics for one campaign over a window.
type CampaignSpend struct {
	CampaignID  string  `json:"campaign_id"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
}
