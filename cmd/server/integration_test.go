package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/server"
)

const records = `YEAR,MONTH,STANDARD_YEAR_MONTH,CITY_NAME,GENDER,AGE_GROUP,LIFESTYLE_KOR,USAGE_CLEAN,CO2E_KG
2024,03,2024-03,Busan,M,30s,Commuter,Transit,40
2024,03,2024-03,Busan,M,30s,Commuter,Food,10
2024,04,2024-04,Busan,M,30s,Commuter,Transit,30
2024,04,2024-04,Busan,M,30s,Commuter,Energy,5
`

func badgerEnv(t *testing.T) config.Env {
	return config.Env{
		Port:         "8080",
		Backend:      config.BackendBadger,
		DataDir:      t.TempDir(),
		Relation:     emission.DefaultRelation,
		TopN:         3,
		PointsPerKG:  10,
		MaxStorageGB: 1,
	}
}

func startServer(t *testing.T, env config.Env) (*httptest.Server, server.Store) {
	t.Helper()
	store, err := server.InitializeWarehouse(context.Background(), env)
	if err != nil {
		t.Fatalf("Failed to initialize warehouse: %v", err)
	}
	router := mux.NewRouter()
	server.SetupRoutes(router, server.InitializeHandlers(store, env), env.Port)
	return httptest.NewServer(router), store
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected status 200, got %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: failed to decode response: %v", url, err)
	}
}

// TestE2E_ImportRenderExport loads CSV into badger and reads it back through every dashboard.
func TestE2E_ImportRenderExport(t *testing.T) {
	srv, store := startServer(t, badgerEnv(t))
	defer store.Close()
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/import", "text/csv", strings.NewReader(records))
	if err != nil {
		t.Fatalf("Import request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected import status 200, got %d", resp.StatusCode)
	}

	var page struct {
		Total struct {
			Rows int64 `json:"rows"`
		} `json:"total"`
		TopUsage []struct {
			Usage string `json:"usage"`
		} `json:"top_usage"`
		Reward struct {
			State  string `json:"state"`
			Points int64  `json:"points"`
		} `json:"reward"`
	}
	getJSON(t, srv.URL+"/v1/dashboard/emissions?year=2024&month=04", &page)

	if page.Total.Rows != 2 {
		t.Errorf("Expected 2 rows for 2024-04, got %d", page.Total.Rows)
	}
	if page.Reward.State != "REWARD" || page.Reward.Points != 150 {
		t.Errorf("Expected REWARD with 150 points, got %s with %d", page.Reward.State, page.Reward.Points)
	}
	if len(page.TopUsage) != 2 || page.TopUsage[0].Usage != "Transit" {
		t.Errorf("Unexpected top usage: %+v", page.TopUsage)
	}

	var periods struct {
		Reward struct {
			State string `json:"state"`
		} `json:"reward"`
	}
	getJSON(t, srv.URL+"/v1/dashboard/periods?year_month=2024-04", &periods)
	if periods.Reward.State != "REWARD" {
		t.Errorf("Expected period REWARD, got %s", periods.Reward.State)
	}

	exp, err := http.Get(srv.URL + "/v1/dashboard/emissions/export?table=trend&year=2024&month=04")
	if err != nil {
		t.Fatalf("Export request failed: %v", err)
	}
	defer exp.Body.Close()
	rows, err := csv.NewReader(exp.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse export: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("Expected header + 2 trend rows, got %d lines", len(rows))
	}

	var storageResp server.StorageResponse
	getJSON(t, srv.URL+"/v1/storage", &storageResp)
	if storageResp.Source.Backend != "badger" || storageResp.Source.Rows != 4 {
		t.Errorf("Unexpected source stats: %+v", storageResp.Source)
	}
	if storageResp.Disk == nil || storageResp.Disk.MaxBytes != 1<<30 {
		t.Errorf("Expected disk usage with a 1 GB limit, got %+v", storageResp.Disk)
	}
}

// TestE2E_BadgerPersists reopens the data directory and expects the same records.
func TestE2E_BadgerPersists(t *testing.T) {
	env := badgerEnv(t)

	srv, store := startServer(t, env)
	resp, err := http.Post(srv.URL+"/v1/import", "text/csv", strings.NewReader(records))
	if err != nil {
		t.Fatalf("Import request failed: %v", err)
	}
	resp.Body.Close()
	srv.Close()
	if err := store.Close(); err != nil {
		t.Fatalf("Failed to close warehouse: %v", err)
	}

	srv, store = startServer(t, env)
	defer store.Close()
	defer srv.Close()

	var catalog struct {
		Options []struct {
			Dimension string   `json:"dimension"`
			Values    []string `json:"values"`
		} `json:"options"`
	}
	getJSON(t, srv.URL+"/v1/catalog?year=2024", &catalog)

	found := false
	for _, opt := range catalog.Options {
		if opt.Dimension == string(emission.ColMonth) {
			found = true
			if strings.Join(opt.Values, ",") != "03,04" {
				t.Errorf("Expected months 03,04 after reopen, got %v", opt.Values)
			}
		}
	}
	if !found {
		t.Errorf("Catalog has no %s option: %+v", emission.ColMonth, catalog.Options)
	}
}
