package sxbet

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

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKeyHex, 4162)
	require.NoError(t, err)
	return s
}

func TestPercentageOddsRoundTrip(t *testing.T) {
	s := formatPercentageOdds(0.55)
	assert.Equal(t, "55000000000000000000", s)

	v, ok := parsePercentageOdds(s)
	require.True(t, ok)
	assert.InDelta(t, 0.55, v, 1e-12)

	_, ok = parsePercentageOdds("not-a-number")
	assert.False(t, ok)
	_, ok = parsePercentageOdds("0")
	assert.False(t, ok)
}

func TestTokenOutcomeOne(t *testing.T) {
	assert.True(t, tokenOutcomeOne("0xabc:1"))
	assert.False(t, tokenOutcomeOne("0xabc:2"))
}

func TestFetchMarketsQuotesComplementOfMakerOdds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/markets/active":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data": map[string]any{
					"markets": []map[string]any{{
						"marketHash":     "0xm1",
						"teaser":         "Lakers vs Celtics",
						"outcomeOneName": "Lakers",
						"outcomeTwoName": "Celtics",
						"gameTime":       1757343600,
						"leagueLabel":    "NBA",
						"sportLabel":     "Basketball",
						"status":         "ACTIVE",
					}},
				},
			})
		case "/orders":
			// Maker bets outcome two at 0.40, so takers get outcome one
			// at the 0.60 complement.
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status": "success",
				"data": []map[string]any{{
					"marketHash":               "0xm1",
					"percentageOdds":           "40000000000000000000",
					"totalBetSize":             "100000000",
					"fillAmount":               "25000000",
					"isMakerBettingOutcomeOne": false,
				}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{RestURL: srv.URL}, nil)
	markets, err := c.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)

	m := markets[0]
	assert.Equal(t, domain.VenueSX, m.Venue)
	assert.Equal(t, "0xm1", m.ExternalID)
	require.Len(t, m.Tokens, 2)
	assert.InDelta(t, 0.60, m.Tokens[0].Price, 1e-9)
	assert.InDelta(t, 75.0, m.Tokens[0].LiquidityUSD, 1e-9)
	assert.Zero(t, m.Tokens[1].Price, "no maker offers outcome two")
}

func TestSubmitOrderSignsAndFills(t *testing.T) {
	var posted map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/orders/fill", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"fillHash": "0xfill"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{
		RestURL:   srv.URL,
		BaseToken: "0x6629Ce1Cf35Cc1329ebB4F63202F3f197b3F050B",
		Executor:  "0x52adf738AAD93c31f798a30b2C74D658e1E9a562",
	}, testSigner(t))

	fill, err := c.SubmitOrder(context.Background(), domain.OrderRequest{
		Venue:    domain.VenueSX,
		MarketID: "0x1111111111111111111111111111111111111111111111111111111111111111",
		TokenID:  "0xm1:1",
		Side:     domain.SideBuy,
		Type:     domain.OrderFOK,
		Price:    0.6,
		SizeUSD:  100,
	})
	require.NoError(t, err)

	assert.True(t, fill.Filled)
	assert.Equal(t, "0xfill", fill.OrderID)
	assert.Equal(t, 100.0, fill.FilledUSD)

	var sig string
	require.NoError(t, json.Unmarshal(posted["signature"], &sig))
	assert.Len(t, sig, 2+65*2)

	var order crypto.FillOrderPayload
	require.NoError(t, json.Unmarshal(posted["order"], &order))
	assert.Equal(t, "100000000", order.TotalBetSize)
	assert.Equal(t, "60000000000000000000", order.PercentageOdds)
	assert.True(t, order.IsTakerBettingOutcomeOne)
}

func TestSubmitOrderRequiresSigner(t *testing.T) {
	c := NewClient(Config{RestURL: "http://unused"}, nil)
	_, err := c.SubmitOrder(context.Background(), domain.OrderRequest{Price: 0.5, SizeUSD: 10})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestNewAPIKeyHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/api-key", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["signature"])
		assert.NotEmpty(t, body["address"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   map[string]any{"apiKey": "key-123"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{RestURL: srv.URL}, testSigner(t))
	key, err := c.NewAPIKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)
}
