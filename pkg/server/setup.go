package server

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/dashboard"
	"github.com/nicktill/carbondash/pkg/export"
	"github.com/nicktill/carbondash/pkg/ingest"
	"github.com/nicktill/carbondash/pkg/server/monitor"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/storage/badger"
	"github.com/nicktill/carbondash/pkg/storage/memory"
	"github.com/nicktill/carbondash/pkg/storage/sqlstore"
)

// Store is a warehouse that also accepts imports. Every backend is one.
type Store interface {
	storage.Warehouse
	storage.Loader
}

// Handlers groups the request handlers and the state they share.
type Handlers struct {
	Dashboard *dashboard.Handler
	Ingest    *ingest.Handler
	Export    *export.Handler
	Hub       *ingest.RefreshHub

	Renderer       *dashboard.Renderer
	RenderMonitor  *monitor.RenderMonitor
	StorageMonitor *monitor.StorageMonitor // nil unless the backend keeps data in DataDir
	Warehouse      storage.Warehouse
}

// InitializeWarehouse opens the backend selected by env.
func InitializeWarehouse(ctx context.Context, env config.Env) (Store, error) {
	switch env.Backend {
	case config.BackendMemory:
		log.Println("Using in-memory warehouse (data is lost on restart)")
		return memory.New(env.Relation), nil

	case config.BackendBadger:
		if err := os.MkdirAll(env.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		log.Printf("Initializing BadgerDB warehouse in %s...", env.DataDir)
		store, err := badger.New(badger.Config{
			Path:        env.DataDir,
			Relation:    env.Relation,
			MaxMemoryMB: env.MaxMemoryMB,
		})
		if err != nil {
			return nil, err
		}
		log.Println("BadgerDB warehouse initialized successfully")
		return store, nil

	case config.BackendSQLite, config.BackendMySQL:
		d, err := sqlstore.DialectByName(env.Backend)
		if err != nil {
			return nil, err
		}
		w, err := sqlstore.Open(ctx, d, env.DSN, env.Relation)
		if err != nil {
			return nil, err
		}
		if err := w.EnsureTable(ctx); err != nil {
			_ = w.Close()
			return nil, err
		}
		log.Printf("Connected to %s warehouse (relation %s)", d.Name, env.Relation)
		return w, nil
	}
	return nil, fmt.Errorf("unknown backend %q", env.Backend)
}

// InitializeHandlers creates and configures all request handlers.
func InitializeHandlers(store Store, env config.Env) *Handlers {
	renderMonitor := &monitor.RenderMonitor{}
	renderer := dashboard.NewRenderer(store, dashboard.Config{
		Relation:    env.Relation,
		TopN:        env.TopN,
		PointsPerKG: env.PointsPerKG,
	})
	renderer.SetObserver(renderMonitor)
	log.Printf("Dashboard renderer ready (relation %s, top %d, %d points/kg)",
		env.Relation, env.TopN, env.PointsPerKG)

	hub := ingest.NewRefreshHub()

	ingestHandler := ingest.NewHandler(store)
	ingestHandler.OnImport(func() { notifyRefresh(store, hub) })

	var storageMonitor *monitor.StorageMonitor
	if env.Backend == config.BackendBadger {
		storageMonitor = monitor.NewStorageMonitor(env.DataDir, env.MaxStorageGB<<30)
		ingestHandler.SetStorageChecker(storageMonitor)
		log.Printf("Import handler created with %d GB storage limit", env.MaxStorageGB)
	} else {
		log.Println("Import handler created")
	}

	return &Handlers{
		Dashboard:      dashboard.NewHandler(renderer, config.RenderTimeout),
		Ingest:         ingestHandler,
		Export:         export.NewHandler(renderer),
		Hub:            hub,
		Renderer:       renderer,
		RenderMonitor:  renderMonitor,
		StorageMonitor: storageMonitor,
		Warehouse:      store,
	}
}
