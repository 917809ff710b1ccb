package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nicktill/carbondash/pkg/config"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/storage/badger"
)

// Notifier delivers refresh events to dashboard clients.
type Notifier interface {
	HasClients() bool
	Notify(stats *storage.Stats) error
}

// notifyRefresh tells clients that the source relation changed.
func notifyRefresh(warehouse storage.Warehouse, n Notifier) {
	ctx, cancel := context.WithTimeout(context.Background(), config.StatsTimeout)
	defer cancel()

	stats, err := warehouse.Stats(ctx)
	if err != nil {
		log.Printf("Failed to read stats for refresh event: %v", err)
		stats = nil // clients still re-render, they just get no stats
	}
	if err := n.Notify(stats); err != nil {
		log.Printf("Failed to broadcast refresh: %v", err)
	}
}

// WatchSource polls the source relation and notifies clients when its row
// count or total changes, so loads made outside this process reach open
// dashboards. Errors back off exponentially to keep outages quiet in logs.
func WatchSource(ctx context.Context, warehouse storage.Warehouse, n Notifier, interval time.Duration) {
	if interval <= 0 {
		log.Println("Source watcher disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Backoff state, plus the last stats seen
	var (
		last              *storage.Stats
		consecutiveErrors int
		lastErrorTime     time.Time
	)
	const maxBackoff = 5 * time.Minute

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Nobody to tell, skip the query
			if !n.HasClients() {
				continue
			}

			statsCtx, cancel := context.WithTimeout(ctx, config.StatsTimeout)
			stats, err := warehouse.Stats(statsCtx)
			cancel()
			if err != nil {
				consecutiveErrors++
				now := time.Now()

				// 1s, 2s, 4s ... capped at maxBackoff
				backoff := time.Duration(1<<uint(min(consecutiveErrors-1, 8))) * time.Second
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				// Only log once per backoff window
				if lastErrorTime.IsZero() || now.Sub(lastErrorTime) >= backoff {
					log.Printf("Failed to read source stats (error #%d, backoff %v): %v",
						consecutiveErrors, backoff, err)
					lastErrorTime = now
				}
				continue
			}

			if consecutiveErrors > 0 {
				log.Printf("Source watcher recovered after %d errors", consecutiveErrors)
				consecutiveErrors = 0
			}

			// the first poll only sets the baseline
			if last != nil && sourceChanged(last, stats) {
				if err := n.Notify(stats); err != nil {
					log.Printf("Failed to broadcast refresh: %v", err)
				}
			}
			last = stats
		}
	}
}

func sourceChanged(prev, cur *storage.Stats) bool {
	return prev.Rows != cur.Rows || !prev.TotalKG.Equal(cur.TotalKG)
}

// RunBadgerGC runs value log garbage collection periodically. It returns
// at once for other backends.
func RunBadgerGC(ctx context.Context, warehouse storage.Warehouse, wg *sync.WaitGroup) {
	defer wg.Done()

	// Only badger has a value log to collect
	badgerStore, ok := warehouse.(*badger.Storage)
	if !ok {
		return
	}

	ticker := time.NewTicker(config.BadgerGCInterval)
	defer ticker.Stop()
	log.Printf("BadgerDB GC scheduler started (runs every %v)", config.BadgerGCInterval)

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			// RunGC returns an error when nothing was worth rewriting
			if err := badgerStore.RunGC(0.5); err != nil {
				log.Printf("GC completed in %v (no rewrite needed)", time.Since(start).Round(time.Millisecond))
			} else {
				log.Printf("GC completed in %v (disk space reclaimed)", time.Since(start).Round(time.Millisecond))
			}
		case <-ctx.Done():
			log.Println("Stopping BadgerDB GC scheduler")
			return
		}
	}
}
