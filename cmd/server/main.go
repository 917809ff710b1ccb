package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/server"
)

const (
	serverReadTimeout = 10 * time.Second
	// renders and exports may run up to config.RenderTimeout
	serverWriteTimeout = config.RenderTimeout + 5*time.Second
	shutdownTimeout    = 30 * time.Second
)

func main() {
	log.Println("Starting carbondash server...")

	// kg values travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	env, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.Printf("Configuration: backend=%s relation=%s top_n=%d points_per_kg=%d",
		env.Backend, env.Relation, env.TopN, env.PointsPerKG)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := server.InitializeWarehouse(initCtx, env)
	initCancel()
	if err != nil {
		log.Fatalf("Failed to initialize warehouse: %v", err)
	}
	defer store.Close()

	handlers := server.InitializeHandlers(store, env)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		handlers.Hub.Run(ctx)
	}()
	log.Println("WebSocket hub started for refresh events")

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.WatchSource(ctx, store, handlers.Hub, env.WatchInterval)
	}()
	log.Printf("Source watcher started (polls every %v while clients are connected)", env.WatchInterval)

	wg.Add(1)
	go server.RunBadgerGC(ctx, store, &wg)

	router := mux.NewRouter()
	server.SetupRoutes(router, handlers, env.Port)

	srv := &http.Server{
		Addr:         ":" + env.Port,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%s", env.Port)
		log.Println("API endpoints:")
		log.Println("   GET  /v1/catalog                   - Dimension options")
		log.Println("   GET  /v1/dashboard/emissions        - Emission dashboard")
		log.Println("   GET  /v1/dashboard/emissions/export - Export a dashboard table")
		log.Println("   GET  /v1/dashboard/periods          - Period dashboard")
		log.Println("   POST /v1/import                     - Load CSV or JSON records")
		log.Println("   GET  /v1/health                     - Service health")
		log.Println("   GET  /metrics                       - Prometheus endpoint")
		log.Println("Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	log.Println("Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}

	log.Println("Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("carbondash server exited cleanly")
}
