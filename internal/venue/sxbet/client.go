// Package sxbet is the REST client for the sx.bet blockchain-settled
// exchange. Orders are taken by signing an EIP-712 FillOrder struct; bet
// sizes and odds travel as fixed-point decimal strings.
package sxbet

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/oddsmesh/crossarb/internal/crypto"
	"github.com/oddsmesh/crossarb/internal/domain"
)

// percentageOddsBase is the fixed-point base for maker odds: 10^20 equals a
// probability of 1.
var percentageOddsBase = new(big.Float).SetFloat64(1e20)

// betSizeBase converts USD to the base token's smallest unit (6 decimals).
const betSizeBase = 1e6

// Config holds the API endpoint and on-chain parameters.
type Config struct {
	// RestURL is the API root, e.g. "https://api.sx.bet".
	RestURL string

	// BaseToken is the settlement token contract address.
	BaseToken string

	// Executor is the exchange's fill executor contract address.
	Executor string
}

// Client talks to the sx.bet REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	signer     *crypto.Signer
}

var _ domain.OrderGateway = (*Client)(nil)

// NewClient creates an sx.bet client. signer may be nil for read-only use;
// order submission then fails with ErrUnauthorized.
func NewClient(cfg Config, signer *crypto.Signer) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
	}
}

func (c *Client) Venue() domain.Venue { return domain.VenueSX }

type apiMarket struct {
	MarketHash    string `json:"marketHash"`
	Teaser        string `json:"teaser"`
	Outcome1Name  string `json:"outcomeOneName"`
	Outcome2Name  string `json:"outcomeTwoName"`
	GameTime      int64  `json:"gameTime"` // unix seconds
	LeagueLabel   string `json:"leagueLabel"`
	SportLabel    string `json:"sportLabel"`
	Type          string `json:"type"`
	Status        string `json:"status"`
}

type marketsResponse struct {
	Status string `json:"status"`
	Data   struct {
		Markets []apiMarket `json:"markets"`
	} `json:"data"`
}

type apiOrder struct {
	MarketHash     string `json:"marketHash"`
	PercentageOdds string `json:"percentageOdds"`
	FillAmount     string `json:"fillAmount"`
	TotalBetSize   string `json:"totalBetSize"`
	IsMakerBettingOutcomeOne bool `json:"isMakerBettingOutcomeOne"`
}

type ordersResponse struct {
	Status string     `json:"status"`
	Data   []apiOrder `json:"data"`
}

// FetchMarkets lists active markets and attaches the best taker quote per
// outcome from the open maker order book. It satisfies feed.FetchFunc.
func (c *Client) FetchMarkets(ctx context.Context) ([]domain.Market, error) {
	body, err := c.doGet(ctx, "/markets/active")
	if err != nil {
		return nil, fmt.Errorf("sxbet: fetch markets: %w", err)
	}
	var mr marketsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("sxbet: decode markets: %w", err)
	}

	out := make([]domain.Market, 0, len(mr.Data.Markets))
	for i := range mr.Data.Markets {
		am := mr.Data.Markets[i]
		if am.Status != "" && am.Status != "ACTIVE" {
			continue
		}
		quotes, err := c.bestQuotes(ctx, am.MarketHash)
		if err != nil {
			return nil, err
		}
		out = append(out, toMarket(am, quotes))
	}
	return out, nil
}

// quote is the best available taker price for one outcome.
type quote struct {
	price        float64
	liquidityUSD float64
}

// bestQuotes scans the maker book for a market. A maker betting outcome two
// offers outcome one to takers, so the quote for outcome one is the
// complement of the maker's odds.
func (c *Client) bestQuotes(ctx context.Context, marketHash string) ([2]quote, error) {
	var quotes [2]quote

	body, err := c.doGet(ctx, "/orders?marketHashes="+marketHash)
	if err != nil {
		return quotes, fmt.Errorf("sxbet: fetch orders: %w", err)
	}
	var or ordersResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return quotes, fmt.Errorf("sxbet: decode orders: %w", err)
	}

	for _, o := range or.Data {
		makerProb, ok := parsePercentageOdds(o.PercentageOdds)
		if !ok {
			continue
		}
		takerProb := 1 - makerProb
		remaining := parseBetSize(o.TotalBetSize) - parseBetSize(o.FillAmount)
		if remaining <= 0 {
			continue
		}

		idx := 0
		if o.IsMakerBettingOutcomeOne {
			idx = 1 // taker gets outcome two
		}
		q := &quotes[idx]
		if q.price == 0 || takerProb < q.price {
			q.price = takerProb
			q.liquidityUSD = remaining
		} else if takerProb == q.price {
			q.liquidityUSD += remaining
		}
	}
	return quotes, nil
}

func toMarket(am apiMarket, quotes [2]quote) domain.Market {
	return domain.Market{
		Venue:      domain.VenueSX,
		ExternalID: am.MarketHash,
		Title:      am.Teaser,
		StartTime:  time.Unix(am.GameTime, 0).UTC(),
		Tokens: []domain.OutcomeToken{
			{
				TokenID:      am.MarketHash + ":1",
				OutcomeLabel: am.Outcome1Name,
				Price:        quotes[0].price,
				LiquidityUSD: quotes[0].liquidityUSD,
			},
			{
				TokenID:      am.MarketHash + ":2",
				OutcomeLabel: am.Outcome2Name,
				Price:        quotes[1].price,
				LiquidityUSD: quotes[1].liquidityUSD,
			},
		},
		MarketTypeCode: am.Type,
		CompetitionTag: am.LeagueLabel,
		Region:         am.SportLabel,
	}
}

type fillResponse struct {
	Status string `json:"status"`
	Data   struct {
		FillHash string `json:"fillHash"`
	} `json:"data"`
}

// SubmitOrder signs and posts a FillOrder. The exchange settles fills
// atomically on-chain, so a success response is a complete fill.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.FillResult, error) {
	if c.signer == nil {
		return domain.FillResult{}, fmt.Errorf("sxbet: submit order: %w", domain.ErrUnauthorized)
	}
	if req.Price <= 0 || req.Price >= 1 {
		return domain.FillResult{}, fmt.Errorf("sxbet: price %v: %w", req.Price, domain.ErrInvalidOrder)
	}

	salt, err := randomSalt()
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("sxbet: salt: %w", err)
	}

	outcomeOne := tokenOutcomeOne(req.TokenID)
	if req.Side == domain.SideSell {
		outcomeOne = !outcomeOne
	}

	payload := crypto.FillOrderPayload{
		MarketHash:               req.MarketID,
		BaseToken:                c.cfg.BaseToken,
		TotalBetSize:             formatBetSize(req.SizeUSD),
		PercentageOdds:           formatPercentageOdds(req.Price),
		Expiry:                   strconv.FormatInt(time.Now().Add(2*time.Minute).Unix(), 10),
		Salt:                     salt,
		Maker:                    c.signer.Address().Hex(),
		Executor:                 c.cfg.Executor,
		IsTakerBettingOutcomeOne: outcomeOne,
	}
	sig, err := c.signer.SignFillOrder(payload)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("sxbet: sign fill order: %w", err)
	}

	body := map[string]any{
		"order":     payload,
		"signature": sig,
	}
	respBody, err := c.doPost(ctx, "/orders/fill", body)
	if err != nil {
		return domain.FillResult{}, fmt.Errorf("sxbet: post fill: %w", err)
	}

	var fr fillResponse
	if err := json.Unmarshal(respBody, &fr); err != nil {
		return domain.FillResult{}, fmt.Errorf("sxbet: decode fill response: %w", err)
	}
	if fr.Status != "success" {
		return domain.FillResult{}, nil
	}
	return domain.FillResult{
		OrderID:   fr.Data.FillHash,
		Filled:    true,
		FillPrice: req.Price,
		FilledUSD: req.SizeUSD,
		FilledAt:  time.Now().UTC(),
	}, nil
}

type apiKeyResponse struct {
	Status string `json:"status"`
	Data   struct {
		APIKey string `json:"apiKey"`
	} `json:"data"`
}

// NewAPIKey performs the signed handshake that issues an API key for the
// private streaming channels.
func (c *Client) NewAPIKey(ctx context.Context) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("sxbet: new api key: %w", domain.ErrUnauthorized)
	}
	ts := time.Now().Unix()
	nonce := time.Now().UnixNano()
	sig, err := c.signer.SignAuthMessage(ts, nonce)
	if err != nil {
		return "", fmt.Errorf("sxbet: sign auth message: %w", err)
	}

	body := map[string]any{
		"address":   c.signer.Address().Hex(),
		"timestamp": ts,
		"nonce":     nonce,
		"signature": sig,
	}
	respBody, err := c.doPost(ctx, "/auth/api-key", body)
	if err != nil {
		return "", fmt.Errorf("sxbet: post api key: %w", err)
	}
	var kr apiKeyResponse
	if err := json.Unmarshal(respBody, &kr); err != nil {
		return "", fmt.Errorf("sxbet: decode api key: %w", err)
	}
	return kr.Data.APIKey, nil
}

// tokenOutcomeOne reports whether a token ID ("marketHash:1" or ":2")
// addresses outcome one.
func tokenOutcomeOne(tok string) bool {
	return len(tok) > 2 && tok[len(tok)-2:] == ":1"
}

func parsePercentageOdds(s string) (float64, bool) {
	n, ok := new(big.Float).SetString(s)
	if !ok {
		return 0, false
	}
	v, _ := new(big.Float).Quo(n, percentageOddsBase).Float64()
	if v <= 0 || v >= 1 {
		return 0, false
	}
	return v, true
}

func formatPercentageOdds(prob float64) string {
	// Quantize to 1e-6 first so float noise never reaches the fixed-point
	// representation the signature covers.
	micro := int64(math.Round(prob * 1e6))
	return new(big.Int).Mul(big.NewInt(micro), big.NewInt(1e14)).String()
}

func parseBetSize(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v / betSizeBase
}

func formatBetSize(usd float64) string {
	return strconv.FormatInt(int64(math.Round(usd*betSizeBase)), 10)
}

func randomSalt() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return new(big.Int).SetBytes(buf[:]).String(), nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.RestURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) doPost(ctx context.Context, path string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RestURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}
