package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmesh/crossarb/internal/domain"
)

type stubSnapshots struct {
	byKey       map[string]domain.Market
	byToken     map[string]domain.Market
	invalidated []string
}

func snapshotKey(venue domain.Venue, id string) string {
	return string(venue) + ":" + id
}

func (s *stubSnapshots) Get(_ context.Context, venue domain.Venue, id string) (domain.Market, error) {
	m, ok := s.byKey[snapshotKey(venue, id)]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *stubSnapshots) GetByToken(_ context.Context, tokenID string) (domain.Market, error) {
	m, ok := s.byToken[tokenID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *stubSnapshots) Invalidate(_ context.Context, venue domain.Venue, id string) error {
	s.invalidated = append(s.invalidated, snapshotKey(venue, id))
	return nil
}

func marketRequest(method, path string, params map[string]string) *http.Request {
	r := httptest.NewRequest(method, path, nil)
	for k, v := range params {
		r.SetPathValue(k, v)
	}
	return r
}

func TestMarketHandlerGet(t *testing.T) {
	snap := domain.Market{Venue: domain.VenueBetfair, ExternalID: "b1", Title: "Illinois vs Drake"}
	h := NewMarketHandler(&stubSnapshots{
		byKey: map[string]domain.Market{"betfair:b1": snap},
	}, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	h.Get(w, marketRequest(http.MethodGet, "/api/markets/betfair/b1",
		map[string]string{"venue": "betfair", "id": "b1"}))

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "b1", got.ExternalID)
	assert.Equal(t, "Illinois vs Drake", got.Title)
}

func TestMarketHandlerGetMissingIs404(t *testing.T) {
	h := NewMarketHandler(&stubSnapshots{}, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	h.Get(w, marketRequest(http.MethodGet, "/api/markets/betfair/nope",
		map[string]string{"venue": "betfair", "id": "nope"}))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarketHandlerGetByToken(t *testing.T) {
	snap := domain.Market{Venue: domain.VenuePolymarket, ExternalID: "p1"}
	h := NewMarketHandler(&stubSnapshots{
		byToken: map[string]domain.Market{"tok-1": snap},
	}, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	h.GetByToken(w, marketRequest(http.MethodGet, "/api/markets/token/tok-1",
		map[string]string{"token": "tok-1"}))

	require.Equal(t, http.StatusOK, w.Code)
	var got domain.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "p1", got.ExternalID)
}

func TestMarketHandlerInvalidate(t *testing.T) {
	store := &stubSnapshots{}
	h := NewMarketHandler(store, slog.New(slog.DiscardHandler))

	w := httptest.NewRecorder()
	h.Invalidate(w, marketRequest(http.MethodDelete, "/api/markets/sxbet/m7",
		map[string]string{"venue": "sxbet", "id": "m7"}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sxbet:m7"}, store.invalidated)
}
