package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"agromarket_backend/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Publisher receives freshly collected observations, e.g. the websocket
// price stream. A nil publisher is allowed.
type Publisher interface {
	PublishPrices(observations []Observation)
}

// FeedQuote is the wire shape of one quote from the external price feed
type FeedQuote struct {
	Commodity string  `json:"commodity"`
	Market    string  `json:"market"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// FeedResponse is the external price feed payload
type FeedResponse struct {
	Quotes []FeedQuote `json:"quotes"`
}

// Collector pulls quotes from the external price feed and records them as
// CommodityPrice rows. It is the body of the data_collection job.
type Collector struct {
	db         *gorm.DB
	feedURL    string
	httpClient *http.Client
	publisher  Publisher
}

// NewCollector creates a collector for the given feed URL
func NewCollector(db *gorm.DB, feedURL string, publisher Publisher) *Collector {
	return &Collector{
		db:      db,
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		publisher: publisher,
	}
}

// CollectAll fetches the current feed snapshot and upserts one price row per
// quote. Individual bad quotes are logged and skipped; only a feed-level or
// database-level failure fails the run.
func (c *Collector) CollectAll(ctx context.Context) error {
	if c.feedURL == "" {
		log.Println("PRICE_FEED_URL not set, skipping price collection")
		return nil
	}

	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch price feed: %w", err)
	}

	stored := make([]Observation, 0, len(feed.Quotes))
	for _, quote := range feed.Quotes {
		obs, err := c.storeQuote(ctx, quote)
		if err != nil {
			log.Printf("Error storing quote for %s/%s: %v", quote.Commodity, quote.Market, err)
			continue
		}
		if obs != nil {
			stored = append(stored, *obs)
		}
	}

	if c.publisher != nil && len(stored) > 0 {
		c.publisher.PublishPrices(stored)
	}

	log.Printf("Collected %d of %d quotes from price feed", len(stored), len(feed.Quotes))
	return nil
}

// fetchFeed downloads and decodes the feed with exponential backoff; feeds
// for regional markets are flaky enough that a couple of retries matter.
func (c *Collector) fetchFeed(ctx context.Context) (*FeedResponse, error) {
	var feed FeedResponse

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("feed returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("feed returned status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &feed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse feed response: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return &feed, nil
}

// storeQuote validates and persists one quote, deduplicating on
// (commodity, market, observed_at)
func (c *Collector) storeQuote(ctx context.Context, quote FeedQuote) (*Observation, error) {
	if quote.Commodity == "" || quote.Price <= 0 {
		return nil, fmt.Errorf("invalid quote: commodity=%q price=%v", quote.Commodity, quote.Price)
	}

	observedAt := time.Now()
	if quote.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, quote.Timestamp); err == nil {
			observedAt = parsed
		}
	}

	price := models.CommodityPrice{
		Commodity:  quote.Commodity,
		Market:     quote.Market,
		Price:      decimal.NewFromFloat(quote.Price),
		Unit:       quote.Unit,
		Source:     "feed",
		ObservedAt: observedAt,
	}

	var existing models.CommodityPrice
	err := c.db.WithContext(ctx).
		Where("commodity = ? AND market = ? AND observed_at = ?", price.Commodity, price.Market, observedAt).
		First(&existing).Error
	if err == nil {
		// Already recorded, nothing to do
		return nil, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	if err := c.db.WithContext(ctx).Create(&price).Error; err != nil {
		return nil, err
	}

	return &Observation{
		Commodity:  price.Commodity,
		Market:     price.Market,
		Price:      price.Price,
		ObservedAt: price.ObservedAt,
	}, nil
}
