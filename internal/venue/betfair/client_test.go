package betfair

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

func rpcServer(t *testing.T, handlers map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		result, ok := handlers[req.Method]
		require.True(t, ok, "unexpected method %s", req.Method)
		raw, err := json.Marshal(result)
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": json.RawMessage(raw)})
	}))
}

func TestFetchMarketsMergesCatalogueAndBook(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"SportsAPING/v1.0/listMarketCatalogue": []map[string]any{{
			"marketId":   "1.234",
			"marketName": "Match Odds",
			"event": map[string]any{
				"name":        "Arsenal v Chelsea",
				"countryCode": "GB",
				"openDate":    "2026-09-05T15:00:00Z",
			},
			"competition": map[string]any{"name": "Premier League"},
			"description": map[string]any{"marketType": "MATCH_ODDS"},
			"runners": []map[string]any{
				{"selectionId": 11, "runnerName": "Arsenal"},
				{"selectionId": 12, "runnerName": "Chelsea"},
			},
		}},
		"SportsAPING/v1.0/listMarketBook": []map[string]any{{
			"marketId": "1.234",
			"status":   "OPEN",
			"runners": []map[string]any{
				{"selectionId": 11, "ex": map[string]any{
					"availableToBack": []map[string]any{{"price": 2.5, "size": 120}},
				}},
			},
		}},
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, AppKey: "k", SessionToken: "t"})
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)

	m := markets[0]
	assert.Equal(t, domain.VenueBetfair, m.Venue)
	assert.Equal(t, "1.234", m.ExternalID)
	assert.Equal(t, "Arsenal v Chelsea", m.Title)
	assert.Equal(t, "Premier League", m.CompetitionTag)
	require.Len(t, m.Tokens, 2)
	assert.Equal(t, "1.234:11", m.Tokens[0].TokenID)
	assert.Equal(t, 2.5, m.Tokens[0].DecimalOdds)
	assert.Equal(t, 120.0, m.Tokens[0].LiquidityUSD)
	assert.Zero(t, m.Tokens[1].DecimalOdds, "runner without a book quote stays unpriced")
}

func TestFetchMarketsSkipsSuspended(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"SportsAPING/v1.0/listMarketCatalogue": []map[string]any{{
			"marketId": "1.234",
			"event":    map[string]any{"name": "X v Y"},
			"runners":  []map[string]any{{"selectionId": 1, "runnerName": "X"}},
		}},
		"SportsAPING/v1.0/listMarketBook": []map[string]any{{
			"marketId": "1.234",
			"status":   "SUSPENDED",
		}},
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, markets)
}

func TestSubmitOrderConvertsProbabilityToOdds(t *testing.T) {
	var placed map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "SportsAPING/v1.0/placeOrders", req.Method)
		placed = req.Params.(map[string]any)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{
			"status": "SUCCESS",
			"instructionReports": []map[string]any{{
				"status":              "SUCCESS",
				"betId":               "bet-1",
				"averagePriceMatched": 2.5,
				"sizeMatched":         50.0,
			}},
		}})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	fill, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Venue:    domain.VenueBetfair,
		MarketID: "1.234",
		TokenID:  "1.234:11",
		Side:     domain.SideSell,
		Type:     domain.OrderFOK,
		Price:    0.4,
		SizeUSD:  50,
	})
	require.NoError(t, err)

	assert.True(t, fill.Filled)
	assert.Equal(t, "bet-1", fill.OrderID)
	assert.Equal(t, 50.0, fill.FilledUSD)
	assert.InDelta(t, 0.4, fill.FillPrice, 1e-9)

	instr := placed["instructions"].([]any)[0].(map[string]any)
	assert.Equal(t, "LAY", instr["side"])
	limit := instr["limitOrder"].(map[string]any)
	assert.InDelta(t, 2.5, limit["price"].(float64), 1e-9)
	assert.Equal(t, "FILL_OR_KILL", limit["timeInForce"])
}

func TestSubmitOrderUnmatchedFOKIsNotFilled(t *testing.T) {
	srv := rpcServer(t, map[string]any{
		"SportsAPING/v1.0/placeOrders": map[string]any{
			"status": "SUCCESS",
			"instructionReports": []map[string]any{{
				"status":      "SUCCESS",
				"betId":       "bet-2",
				"sizeMatched": 0.0,
			}},
		},
	})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	fill, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		TokenID: "1.234:11",
		Side:    domain.SideBuy,
		Price:   0.5,
		SizeUSD: 25,
	})
	require.NoError(t, err)
	assert.False(t, fill.Filled)
	assert.Zero(t, fill.FilledUSD)
}

func TestSplitToken(t *testing.T) {
	marketID, selectionID, ok := splitToken("1.234:567")
	require.True(t, ok)
	assert.Equal(t, "1.234", marketID)
	assert.Equal(t, int64(567), selectionID)

	_, _, ok = splitToken("no-separator")
	assert.False(t, ok)
}
