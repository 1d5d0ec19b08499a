// Package polymarket is the REST client for the Polymarket CLOB venue:
// market discovery for the feed layer and HMAC-authenticated order
// submission for the execution layer.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oddsmesh/crossarb/internal/crypto"
	"github.com/oddsmesh/crossarb/internal/domain"
)

// Config holds the CLOB API endpoints and credentials.
type Config struct {
	// RestURL is the CLOB API root, e.g. "https://clob.polymarket.com".
	RestURL string

	// Address is the funder wallet address the API credentials belong to.
	Address string
}

// Client talks to the Polymarket CLOB REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	auth       *crypto.HMACAuth
}

var _ domain.OrderGateway = (*Client)(nil)

// NewClient creates a CLOB client. auth may be nil for read-only use; order
// submission and balance queries then fail with ErrUnauthorized.
func NewClient(cfg Config, auth *crypto.HMACAuth) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
	}
}

func (c *Client) Venue() domain.Venue { return domain.VenuePolymarket }

type apiToken struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Price   string `json:"price"`
}

type apiMarket struct {
	ConditionID  string     `json:"condition_id"`
	Question     string     `json:"question"`
	GameStartTs  string     `json:"game_start_time"`
	EndDateISO   string     `json:"end_date_iso"`
	Tokens       []apiToken `json:"tokens"`
	Liquidity    string     `json:"liquidity"`
	Active       bool       `json:"active"`
	Closed       bool       `json:"closed"`
	MarketSlug   string     `json:"market_slug"`
	Tags         []string   `json:"tags"`
}

type apiMarketsPage struct {
	Data       []apiMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// FetchMarkets pages through active markets and converts them to domain
// snapshots. It satisfies feed.FetchFunc.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	var out []domain.Market
	cursor := ""
	for {
		params := url.Values{}
		if cursor != "" {
			params.Set("next_cursor", cursor)
		}
		path := "/markets"
		if len(params) > 0 {
			path += "?" + params.Encode()
		}

		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("polymarket: fetch markets: %w", err)
		}

		var page apiMarketsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("polymarket: decode markets: %w", err)
		}
		for i := range page.Data {
			if m, ok := toMarket(page.Data[i]); ok {
				out = append(out, m)
			}
		}
		if page.NextCursor == "" || page.NextCursor == "LTE=" || len(page.Data) == 0 {
			return out, nil
		}
		cursor = page.NextCursor
	}
}

func toMarket(am apiMarket) (domain.Market, bool) {
	if !am.Active || am.Closed || len(am.Tokens) == 0 {
		return domain.Market{}, false
	}

	start, _ := time.Parse(time.RFC3339, am.GameStartTs)
	if start.IsZero() {
		start, _ = time.Parse(time.RFC3339, am.EndDateISO)
	}
	liquidity, _ := strconv.ParseFloat(am.Liquidity, 64)

	tokens := make([]domain.OutcomeToken, 0, len(am.Tokens))
	for _, t := range am.Tokens {
		price, _ := strconv.ParseFloat(t.Price, 64)
		tokens = append(tokens, domain.OutcomeToken{
			TokenID:      t.TokenID,
			OutcomeLabel: t.Outcome,
			Price:        price,
			LiquidityUSD: liquidity,
		})
	}

	region := ""
	if len(am.Tags) > 0 {
		region = am.Tags[0]
	}
	return domain.Market{
		Venue:      domain.VenuePolymarket,
		ExternalID: am.ConditionID,
		Title:      am.Question,
		StartTime:  start,
		Tokens:     tokens,
		Region:     region,
	}, true
}

type apiOrderResult struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"orderID"`
	Status    string `json:"status"`
	ErrorMsg  string `json:"errorMsg"`
	AvgPrice  string `json:"avgPrice"`
	SizeMatch string `json:"makingAmount"`
}

// SubmitOrder places a fill-or-kill order on the CLOB. A clean rejection
// (unmatched FOK) returns Filled false with a nil error; transport and auth
// failures return the error so the caller knows the venue state is unknown.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if c.auth == nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: submit order: %w", domain.ErrUnauthorized)
	}

	payload := map[string]any{
		"order": map[string]any{
			"tokenID": req.TokenID,
			"price":   strconv.FormatFloat(req.Price, 'f', -1, 64),
			"size":    strconv.FormatFloat(req.SizeUSD, 'f', -1, 64),
			"side":    string(req.Side),
		},
		"owner":     c.cfg.Address,
		"orderType": "FOK",
	}

	respBody, err := c.doAuthenticated(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: post order: %w", err)
	}

	var result apiOrderResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.FillResult{}, fmt.Errorf("polymarket: decode order result: %w", err)
	}
	if !result.Success {
		// The venue rejected the order outright; no fill, no exposure.
		return domain.FillResult{OrderID: result.OrderID}, nil
	}

	avg, _ := strconv.ParseFloat(result.AvgPrice, 64)
	if avg <= 0 {
		avg = req.Price
	}
	matched := result.Status == "matched"
	fill := domain.FillResult{
		OrderID:   result.OrderID,
		Filled:    matched,
		FillPrice: avg,
		FilledAt:  time.Now().UTC(),
	}
	if matched {
		fill.FilledUSD = req.SizeUSD
	}
	return fill, nil
}

type apiBalance struct {
	Balance string `json:"balance"`
}

// Balance returns the wallet's available collateral in USD. Satisfies
// domain.BalanceOracle.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if c.auth == nil {
		return 0, fmt.Errorf("polymarket: balance: %w", domain.ErrUnauthorized)
	}
	body, err := c.doAuthenticated(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket: balance: %w", err)
	}
	var bal apiBalance
	if err := json.Unmarshal(body, &bal); err != nil {
		return 0, fmt.Errorf("polymarket: decode balance: %w", err)
	}
	v, err := strconv.ParseFloat(bal.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket: parse balance %q: %w", bal.Balance, err)
	}
	// The API reports micro-USDC.
	return v / 1e6, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RestURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) doAuthenticated(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.RestURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.auth.Headers(c.cfg.Address, method, path, string(bodyBytes)) {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
