package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/crypto"
	"github.com/oddsmesh/crossarb/internal/domain"
)

func TestFetchMarketsPagesAndFilters(t *testing.T) {
	page := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		page++
		switch page {
		case 1:
			require.Empty(t, r.URL.Query().Get("next_cursor"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"condition_id":    "0xc1",
						"question":        "Will the Lakers beat the Celtics?",
						"game_start_time": "2026-09-08T23:00:00Z",
						"active":          true,
						"closed":          false,
						"liquidity":       "1500.5",
						"tags":            []string{"NBA"},
						"tokens": []map[string]any{
							{"token_id": "t-yes", "outcome": "Yes", "price": "0.62"},
							{"token_id": "t-no", "outcome": "No", "price": "0.38"},
						},
					},
					{
						"condition_id": "0xc2",
						"question":     "Closed market",
						"active":       true,
						"closed":       true,
						"tokens":       []map[string]any{{"token_id": "x", "price": "0.5"}},
					},
				},
				"next_cursor": "abc",
			})
		case 2:
			require.Equal(t, "abc", r.URL.Query().Get("next_cursor"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":        []map[string]any{},
				"next_cursor": "LTE=",
			})
		default:
			t.Error("fetched past the final page")
		}
	}))
	defer srv.Close()

	c := NewClient(Config{RestURL: srv.URL}, nil)
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1, "closed markets are dropped")

	m := markets[0]
	assert.Equal(t, domain.VenuePolymarket, m.Venue)
	assert.Equal(t, "0xc1", m.ExternalID)
	assert.Equal(t, "NBA", m.Region)
	require.Len(t, m.Tokens, 2)
	assert.Equal(t, "t-yes", m.Tokens[0].TokenID)
	assert.InDelta(t, 0.62, m.Tokens[0].Price, 1e-9)
	assert.InDelta(t, 1500.5, m.Tokens[0].LiquidityUSD, 1e-9)
}

func TestSubmitOrderRequiresAuth(t *testing.T) {
	c := NewClient(Config{RestURL: "http://unused"}, nil)
	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSubmitOrderSendsSignedHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/order", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("POLY_SIGNATURE"))
		assert.Equal(t, "api-key", r.Header.Get("POLY_API_KEY"))
		assert.Equal(t, "0xwallet", r.Header.Get("POLY_ADDRESS"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "FOK", body["orderType"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"orderID":  "ord-1",
			"status":   "matched",
			"avgPrice": "0.61",
		})
	}))
	defer srv.Close()

	auth := &crypto.HMACAuth{Key: "api-key", Secret: "c2VjcmV0", Passphrase: "pass"}
	c := NewClient(Config{RestURL: srv.URL, Address: "0xwallet"}, auth)

	fill, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Venue:   domain.VenuePolymarket,
		TokenID: "t-yes",
		Side:    domain.SideBuy,
		Type:    domain.OrderFOK,
		Price:   0.62,
		SizeUSD: 40,
	})
	require.NoError(t, err)

	assert.True(t, fill.Filled)
	assert.Equal(t, "ord-1", fill.OrderID)
	assert.InDelta(t, 0.61, fill.FillPrice, 1e-9)
	assert.Equal(t, 40.0, fill.FilledUSD)
}

func TestSubmitOrderRejectionIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  false,
			"errorMsg": "not enough liquidity",
		})
	}))
	defer srv.Close()

	c := NewClient(Config{RestURL: srv.URL, Address: "0xw"}, &crypto.HMACAuth{Key: "k", Secret: "cw==", Passphrase: "p"})
	fill, err := c.SubmitOrder(context.Background(), domain.OrderRequest{TokenID: "t", Side: domain.SideBuy, Price: 0.5, SizeUSD: 10})
	require.NoError(t, err)
	assert.False(t, fill.Filled)
}

func TestBalanceParsesMicroUSDC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"balance": "250000000"})
	}))
	defer srv.Close()

	c := NewClient(Config{RestURL: srv.URL, Address: "0xw"}, &crypto.HMACAuth{Key: "k", Secret: "cw==", Passphrase: "p"})
	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 250.0, bal, 1e-9)
}
