package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/httpx"
	"github.com/nicktill/carbondash/pkg/ingest"
	"github.com/nicktill/carbondash/pkg/server/monitor"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

var startTime = time.Now()

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string               `json:"status"`
	Version string               `json:"version"`
	Uptime  string               `json:"uptime"`
	Clients int                  `json:"clients"`
	Renders monitor.RenderStatus `json:"renders"`
}

// StorageResponse describes the source relation and, for local backends,
// the data directory.
type StorageResponse struct {
	Source *storage.Stats        `json:"source"`
	Disk   *monitor.StorageUsage `json:"disk,omitempty"`
}

// handleHealth returns service health. Repeated render failures mark the
// service degraded.
func handleHealth(renderMonitor *monitor.RenderMonitor, hub *ingest.RefreshHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := renderMonitor.Status()
		overall := "healthy"
		code := http.StatusOK
		if !status.Healthy {
			overall = "degraded"
			code = http.StatusServiceUnavailable
		}

		httpx.RespondJSON(w, code, HealthResponse{
			Status:  overall,
			Version: Version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Clients: hub.ClientCount(),
			Renders: status,
		})
	}
}

// handleStorage returns source relation stats and disk usage.
func handleStorage(warehouse storage.Warehouse, storageMonitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
		defer cancel()

		stats, err := warehouse.Stats(ctx)
		if err != nil {
			httpx.RespondError(w, http.StatusBadGateway, err)
			return
		}

		resp := StorageResponse{Source: stats}
		if storageMonitor != nil {
			usage, err := storageMonitor.Usage()
			if err != nil {
				httpx.RespondError(w, http.StatusInternalServerError, err)
				return
			}
			resp.Disk = &usage
		}
		httpx.RespondJSON(w, http.StatusOK, resp)
	}
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, h *Handlers, port string) {
	router.Use(corsMiddleware(port))

	api := router.PathPrefix("/v1").Subrouter()

	// Dashboards
	api.HandleFunc("/catalog", h.Dashboard.HandleCatalog).Methods("GET")
	api.HandleFunc("/dashboard/emissions", h.Dashboard.HandleEmissions).Methods("GET")
	api.HandleFunc("/dashboard/emissions/export", h.Export.HandleExport).Methods("GET")
	api.HandleFunc("/dashboard/periods", h.Dashboard.HandlePeriods).Methods("GET")

	// Loading
	api.HandleFunc("/import", h.Ingest.HandleImport).Methods("POST")

	// Operations
	api.HandleFunc("/health", handleHealth(h.RenderMonitor, h.Hub)).Methods("GET")
	api.HandleFunc("/storage", handleStorage(h.Warehouse, h.StorageMonitor)).Methods("GET")

	// WebSocket for refresh events
	api.HandleFunc("/ws", ingest.HandleWebSocket(h.Hub)).Methods("GET")

	router.Handle("/metrics", telemetry.Handler()).Methods("GET")
}

// corsMiddleware allows browser access from localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := []string{
		"http://localhost:" + port,
		"http://127.0.0.1:" + port,
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); lo.Contains(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
