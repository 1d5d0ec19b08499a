// Package betfair is the JSON-RPC client for the Betfair Exchange betting
// API. Betfair quotes decimal odds and has no streaming tier on the plan
// this engine targets, so the feed layer polls FetchMarkets.
package betfair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oddsmesh/crossarb/internal/domain"
)

// Config holds the exchange endpoint and session credentials.
type Config struct {
	// BaseURL is the JSON-RPC root, e.g.
	// "https://api.betfair.com/exchange/betting/json-rpc/v1".
	BaseURL string

	AppKey       string
	SessionToken string

	// MaxResults caps the catalogue page size per fetch.
	MaxResults int
}

// Client talks to the Betfair Exchange API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.OrderGateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 200
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Venue() domain.Venue { return domain.VenueBetfair }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type catalogueRunner struct {
	SelectionID int64  `json:"selectionId"`
	RunnerName  string `json:"runnerName"`
}

type catalogueEntry struct {
	MarketID    string            `json:"marketId"`
	MarketName  string            `json:"marketName"`
	TotalMatched float64          `json:"totalMatched"`
	Event       struct {
		Name        string `json:"name"`
		CountryCode string `json:"countryCode"`
		OpenDate    string `json:"openDate"`
	} `json:"event"`
	Competition struct {
		Name string `json:"name"`
	} `json:"competition"`
	Description struct {
		MarketType string `json:"marketType"`
	} `json:"description"`
	Runners []catalogueRunner `json:"runners"`
}

type bookRunner struct {
	SelectionID int64 `json:"selectionId"`
	EX          struct {
		AvailableToBack []struct {
			Price float64 `json:"price"`
			Size  float64 `json:"size"`
		} `json:"availableToBack"`
	} `json:"ex"`
}

type bookEntry struct {
	MarketID string       `json:"marketId"`
	Status   string       `json:"status"`
	Runners  []bookRunner `json:"runners"`
}

// FetchMarkets lists the open match-odds catalogue, attaches best
// back prices from the corresponding market books, and converts the result
// to domain snapshots. It satisfies feed.FetchFunc.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	catalogue, err := c.listCatalogue(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalogue) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(catalogue))
	for _, e := range catalogue {
		ids = append(ids, e.MarketID)
	}
	books, err := c.listBooks(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Market, 0, len(catalogue))
	for i := range catalogue {
		if m, ok := toMarket(catalogue[i], books[catalogue[i].MarketID]); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *Client) listCatalogue(ctx context.Context) ([]catalogueEntry, error) {
	params := map[string]any{
		"filter": map[string]any{
			"marketTypeCodes": []string{"MATCH_ODDS"},
			"inPlayOnly":      false,
		},
		"marketProjection": []string{"EVENT", "COMPETITION", "RUNNER_DESCRIPTION", "MARKET_DESCRIPTION"},
		"sort":             "MAXIMUM_TRADED",
		"maxResults":       c.cfg.MaxResults,
	}
	raw, err := c.call(ctx, "SportsAPING/v1.0/listMarketCatalogue", params)
	if err != nil {
		return nil, fmt.Errorf("betfair: list catalogue: %w", err)
	}
	var entries []catalogueEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("betfair: decode catalogue: %w", err)
	}
	return entries, nil
}

func (c *Client) listBooks(ctx context.Context, marketIDs []string) (map[string]bookEntry, error) {
	params := map[string]any{
		"marketIds": marketIDs,
		"priceProjection": map[string]any{
			"priceData": []string{"EX_BEST_OFFERS"},
		},
	}
	raw, err := c.call(ctx, "SportsAPING/v1.0/listMarketBook", params)
	if err != nil {
		return nil, fmt.Errorf("betfair: list books: %w", err)
	}
	var entries []bookEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("betfair: decode books: %w", err)
	}
	byID := make(map[string]bookEntry, len(entries))
	for _, e := range entries {
		byID[e.MarketID] = e
	}
	return byID, nil
}

func toMarket(cat catalogueEntry, book bookEntry) (domain.Market, bool) {
	if book.Status != "" && book.Status != "OPEN" {
		return domain.Market{}, false
	}
	start, _ := time.Parse(time.RFC3339, cat.Event.OpenDate)

	prices := make(map[int64]struct {
		odds float64
		size float64
	}, len(book.Runners))
	for _, r := range book.Runners {
		if len(r.EX.AvailableToBack) > 0 {
			best := r.EX.AvailableToBack[0]
			prices[r.SelectionID] = struct {
				odds float64
				size float64
			}{best.Price, best.Size}
		}
	}

	tokens := make([]domain.OutcomeToken, 0, len(cat.Runners))
	for _, r := range cat.Runners {
		p := prices[r.SelectionID]
		tokens = append(tokens, domain.OutcomeToken{
			TokenID:      fmt.Sprintf("%s:%d", cat.MarketID, r.SelectionID),
			OutcomeLabel: r.RunnerName,
			DecimalOdds:  p.odds,
			LiquidityUSD: p.size,
		})
	}
	if len(tokens) == 0 {
		return domain.Market{}, false
	}

	return domain.Market{
		Venue:          domain.VenueBetfair,
		ExternalID:     cat.MarketID,
		Title:          cat.Event.Name,
		StartTime:      start,
		Tokens:         tokens,
		MarketTypeCode: cat.Description.MarketType,
		CompetitionTag: cat.Competition.Name,
		Region:         cat.Event.CountryCode,
	}, true
}

type placeReport struct {
	Status        string `json:"status"`
	ErrorCode     string `json:"errorCode"`
	InstructionReports []struct {
		Status       string  `json:"status"`
		BetID        string  `json:"betId"`
		AveragePriceMatched float64 `json:"averagePriceMatched"`
		SizeMatched  float64 `json:"sizeMatched"`
	} `json:"instructionReports"`
}

// SubmitOrder places a fill-or-kill limit bet. Buying the outcome maps to a
// BACK bet, selling to a LAY. The selection ID is carried in the token as
// "marketID:selectionID".
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	marketID, selectionID, ok := splitToken(req.TokenID)
	if !ok {
		return domain.FillResult{}, fmt.Errorf("betfair: token %q: %w", req.TokenID, domain.ErrInvalidOrder)
	}

	side := "BACK"
	if req.Side == domain.SideSell {
		side = "LAY"
	}
	odds := req.Price
	if odds <= 1 {
		// Price given as implied probability; convert to decimal odds.
		if req.Price <= 0 {
			return domain.FillResult{}, fmt.Errorf("betfair: price %v: %w", req.Price, domain.ErrInvalidOrder)
		}
		odds = 1 / req.Price
	}

	params := map[string]any{
		"marketId": marketID,
		"instructions": []map[string]any{{
			"selectionId": selectionID,
			"side":        side,
			"orderType":   "LIMIT",
			"limitOrder": map[string]any{
				"size":        req.SizeUSD,
				"price":       odds,
				"timeInForce": "FILL_OR_KILL",
			},
		}},
	}

	raw, err := c.call(ctx, "SportsAPING/v1.0/placeOrders", params)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("betfair: place order: %w", err)
	}

	var report placeReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.FillResult{}, fmt.Errorf("betfair: decode place report: %w", err)
	}
	if len(report.InstructionReports) == 0 {
		return domain.FillResult{}, nil
	}

	ir := report.InstructionReports[0]
	filled := report.Status == "SUCCESS" && ir.Status == "SUCCESS" && ir.SizeMatched >= req.SizeUSD
	fill := domain.FillResult{
		OrderID:  ir.BetID,
		FilledAt: time.Now().UTC(),
	}
	if filled {
		fill.Filled = true
		fill.FilledUSD = ir.SizeMatched
		if ir.AveragePriceMatched > 1 {
			fill.FillPrice = 1 / ir.AveragePriceMatched
		} else {
			fill.FillPrice = req.Price
		}
	}
	return fill, nil
}

func splitToken(tok string) (marketID string, selectionID int64, ok bool) {
	for i := len(tok) - 1; i >= 0; i-- {
		if tok[i] == ':' {
			var n int64
			if _, err := fmt.Sscanf(tok[i+1:], "%d", &n); err != nil {
				return "", 0, false
			}
			return tok[:i], n, true
		}
	}
	return "", 0, false
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Application", c.cfg.AppKey)
	req.Header.Set("X-Authentication", c.cfg.SessionToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, err
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
