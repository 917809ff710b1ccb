package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/storage"
)

func newTestHandler(t *testing.T, w storage.Warehouse) *Handler {
	t.Helper()
	return NewHandler(NewRenderer(w, Config{}), 5*time.Second)
}

type pageResponse struct {
	Empty bool `json:"empty"`
	Total struct {
		Rows int64 `json:"rows"`
	} `json:"total"`
	Trend []struct {
		Key string `json:"key"`
	} `json:"trend"`
	Reward struct {
		State  string `json:"state"`
		Points int64  `json:"points"`
		Level  string `json:"level"`
	} `json:"reward"`
}

func TestHandleEmissions(t *testing.T) {
	h := newTestHandler(t, newStore(t, fixtureRecords()))

	req := httptest.NewRequest(http.MethodGet,
		"/v1/dashboard/emissions?year=2023&month=02&city=Seoul&gender=F&age_group=20s&lifestyle=Eco", nil)
	rec := httptest.NewRecorder()
	h.HandleEmissions(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp pageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.False(t, resp.Empty)
	require.Equal(t, int64(3), resp.Total.Rows)
	require.Len(t, resp.Trend, 3)
	require.Equal(t, "REWARD", resp.Reward.State)
	require.Equal(t, int64(30), resp.Reward.Points)
	require.Equal(t, LevelSuccess, resp.Reward.Level)
}

func TestHandleEmissions_BadRequests(t *testing.T) {
	h := newTestHandler(t, newStore(t, fixtureRecords()))

	tests := []struct {
		name   string
		method string
		query  string
		want   int
	}{
		{"wrong method", http.MethodPost, "", http.StatusMethodNotAllowed},
		{"unknown city", http.MethodGet, "?city=Tokyo", http.StatusBadRequest},
		{"non-integer year", http.MethodGet, "?year=abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleEmissions(rec, httptest.NewRequest(tt.method, "/v1/dashboard/emissions"+tt.query, nil))
			require.Equal(t, tt.want, rec.Code, rec.Body.String())

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.NotEmpty(t, resp["error"])
		})
	}
}

func TestHandleEmissions_Upstream(t *testing.T) {
	h := newTestHandler(t, &failingWarehouse{Warehouse: newStore(t, fixtureRecords())})

	rec := httptest.NewRecorder()
	h.HandleEmissions(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard/emissions", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandlePeriods(t *testing.T) {
	h := newTestHandler(t, newStore(t, fixtureRecords()))

	rec := httptest.NewRecorder()
	h.HandlePeriods(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard/periods?year_month=2023-02&city=Seoul", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, int64(5), resp.Total.Rows)
	require.Equal(t, "INCREASED", resp.Reward.State)
	require.Equal(t, LevelWarning, resp.Reward.Level)
}

func TestHandleCatalog(t *testing.T) {
	h := newTestHandler(t, newStore(t, fixtureRecords()))

	rec := httptest.NewRecorder()
	h.HandleCatalog(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog?year=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Options Options `json:"options"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, []string{"01"}, resp.Options.Values(emission.ColMonth))
	require.Equal(t, []string{"2023", "2024"}, resp.Options.Values(emission.ColYear))
}

func TestSelectionFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?year=2023&city=Seoul&month=&unrelated=x", nil)
	sel := SelectionFromRequest(req, PrimaryDims...)
	require.Equal(t, Selection{emission.ColYear: "2023", emission.ColCity: "Seoul"}, sel)
}
