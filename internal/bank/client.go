package bank

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"potledger/internal/core"
)

// Client fetches transactions from the provider's REST API. Any transport or
// decoding failure is surfaced as an upstream error so callers can tell
// provider outages apart from their own bugs.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type feedItem struct {
	ID       string `json:"id"`
	Merchant struct {
		Name    string `json:"name"`
		IconURL string `json:"icon_url"`
	} `json:"merchant"`
	AmountMinor int64     `json:"amount_minor"`
	Scale       int       `json:"scale"`
	CreatedAt   time.Time `json:"created_at"`
}

type feedResponse struct {
	Transactions []feedItem `json:"transactions"`
}

func (c *Client) FetchPushedTransactions(ctx context.Context) ([]FeedTransaction, error) {
	return c.fetch(ctx, "/v1/feed/pushed")
}

func (c *Client) FetchPulledTransactions(ctx context.Context, accountID string) ([]FeedTransaction, error) {
	return c.fetch(ctx, "/v1/accounts/"+url.PathEscape(accountID)+"/transactions")
}

func (c *Client) fetch(ctx context.Context, path string) ([]FeedTransaction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.Upstreamf(err, "fetch %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.Upstreamf(nil, "fetch %s: provider returned %d", path, resp.StatusCode)
	}

	var body feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, core.Upstreamf(err, "decode %s", path)
	}

	out := make([]FeedTransaction, 0, len(body.Transactions))
	for _, item := range body.Transactions {
		out = append(out, FeedTransaction{
			ExternalID:   item.ID,
			MerchantName: item.Merchant.Name,
			IconURL:      item.Merchant.IconURL,
			AmountMinor:  item.AmountMinor,
			Scale:        item.Scale,
			Timestamp:    item.CreatedAt,
		})
	}
	return out, nil
}
