package insights

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver
)

// Client provides access to the ad-platform insights warehouse.
type Client struct {
	config Config
	db     *sql.DB
}

// NewClient opens a warehouse connection.
func NewClient(cfg Config) (*Client, error) {
	// DSN format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open insights warehouse: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{config: cfg, db: db}, nil
}

// Close closes the warehouse connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the warehouse connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// CampaignSpend returns per-campaign delivery totals for the window.
func (c *Client) CampaignSpend(ctx context.Context, storeID string, since, until time.Time) ([]CampaignSpend, error) {
	query := `
		SELECT CAMPAIGN_ID,
		       SUM(SPEND) AS spend,
		       SUM(IMPRESSIONS) AS impressions,
		       SUM(CLICKS) AS clicks
		FROM META_CAMPAIGN_INSIGHTS
		WHERE STORE_ID = ? AND INSIGHT_DATE >= ? AND INSIGHT_DATE <= ?
		GROUP BY CAMPAIGN_ID
		ORDER BY spend DESC
	`
	rows, err := c.db.QueryContext(ctx, query,
		storeID, since.Format("2006-01-02"), until.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("campaign spend: %w", err)
	}
	defer rows.Close()

	var result []CampaignSpend
	for rows.Next() {
		var s CampaignSpend
		if err := rows.Scan(&s.CampaignID, &s.Spend, &s.Impressions, &s.Clicks); err != nil {
			return nil, fmt.Errorf("scan campaign spend: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
