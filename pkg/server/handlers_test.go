package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/storage/memory"
)

const importCSV = `YEAR,MONTH,STANDARD_YEAR_MONTH,CITY_NAME,GENDER,AGE_GROUP,LIFESTYLE_KOR,USAGE_CLEAN,CO2E_KG
2023,01,2023-01,Seoul,F,20s,Eco,Transit,20
2023,02,2023-02,Seoul,F,20s,Eco,Transit,12
`

func newTestServer(t *testing.T) (*httptest.Server, *Handlers) {
	t.Helper()
	env := config.Env{
		Port:        "8080",
		Backend:     config.BackendMemory,
		Relation:    emission.DefaultRelation,
		TopN:        3,
		PointsPerKG: 10,
	}
	h := InitializeHandlers(memory.New(env.Relation), env)

	router := mux.NewRouter()
	SetupRoutes(router, h, env.Port)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, h
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func importFixture(t *testing.T, srv *httptest.Server) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/import", "text/csv", strings.NewReader(importCSV))
	if err != nil {
		t.Fatalf("Import request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected import status 200, got %d", resp.StatusCode)
	}
}

func TestImportThenRender(t *testing.T) {
	srv, _ := newTestServer(t)
	importFixture(t, srv)

	page := get(t, srv.URL+"/v1/dashboard/emissions?year=2023&month=02&city=Seoul&gender=F&age_group=20s&lifestyle=Eco")
	if page.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", page.StatusCode)
	}

	var body struct {
		Total struct {
			Rows int64 `json:"rows"`
		} `json:"total"`
		Reward struct {
			State  string `json:"state"`
			Points int64  `json:"points"`
		} `json:"reward"`
	}
	decode(t, page, &body)
	if body.Total.Rows != 1 {
		t.Errorf("Expected 1 row, got %d", body.Total.Rows)
	}
	if body.Reward.State != "REWARD" || body.Reward.Points != 80 {
		t.Errorf("Expected REWARD with 80 points, got %s with %d", body.Reward.State, body.Reward.Points)
	}
}

func TestRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	importFixture(t, srv)

	tests := []struct {
		path string
		want int
	}{
		{"/v1/catalog", http.StatusOK},
		{"/v1/dashboard/periods", http.StatusOK},
		{"/v1/dashboard/emissions/export?table=trend", http.StatusOK},
		{"/v1/dashboard/emissions?city=Tokyo", http.StatusBadRequest},
		{"/v1/storage", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/v1/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := get(t, srv.URL+tt.path).StatusCode; got != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, got)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	srv, h := newTestServer(t)

	resp := get(t, srv.URL+"/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	var health HealthResponse
	decode(t, resp, &health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}
	if health.Version != Version {
		t.Errorf("Expected version %s, got %s", Version, health.Version)
	}

	for i := 0; i < 4; i++ {
		h.RenderMonitor.RecordFailure(http.ErrHandlerTimeout)
	}
	degraded := get(t, srv.URL+"/v1/health")
	if degraded.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", degraded.StatusCode)
	}
	decode(t, degraded, &health)
	if health.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", health.Status)
	}
	if health.Renders.ConsecutiveErrors != 4 {
		t.Errorf("Expected 4 consecutive errors, got %d", health.Renders.ConsecutiveErrors)
	}
}

func TestHealthIgnoresBadRequests(t *testing.T) {
	srv, h := newTestServer(t)
	importFixture(t, srv)

	for i := 0; i < 10; i++ {
		resp := get(t, srv.URL+"/v1/dashboard/emissions?city=Nowhere")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("Expected status 400, got %d", resp.StatusCode)
		}
	}

	if !h.RenderMonitor.IsHealthy() {
		t.Errorf("Expected monitor to stay healthy after input errors: %+v", h.RenderMonitor.Status())
	}
	if code := get(t, srv.URL+"/v1/health").StatusCode; code != http.StatusOK {
		t.Errorf("Expected health status 200, got %d", code)
	}
}

func TestStorageReportsSource(t *testing.T) {
	srv, _ := newTestServer(t)
	importFixture(t, srv)

	var body StorageResponse
	decode(t, get(t, srv.URL+"/v1/storage"), &body)
	if body.Source.Rows != 2 {
		t.Errorf("Expected 2 rows, got %d", body.Source.Rows)
	}
	if body.Source.TotalKG.String() != "32" {
		t.Errorf("Expected total 32 kg, got %s", body.Source.TotalKG)
	}
	if body.Source.Backend != "memory" {
		t.Errorf("Expected memory backend, got %s", body.Source.Backend)
	}
	if body.Disk != nil {
		t.Errorf("Expected no disk usage for memory backend, got %+v", body.Disk)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	for origin, want := range map[string]string{
		"http://localhost:8080": "http://localhost:8080",
		"http://evil.example":   "",
	} {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/health", nil)
		if err != nil {
			t.Fatalf("Failed to build request: %v", err)
		}
		req.Header.Set("Origin", origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		resp.Body.Close()
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != want {
			t.Errorf("Origin %s: expected allow-origin %q, got %q", origin, want, got)
		}
	}
}
