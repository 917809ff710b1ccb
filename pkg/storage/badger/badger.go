package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/storage/local"
)

const (
	recordTag = 'r'

	// Sequence leases are handed out in blocks; unused ids are lost on restart.
	sequenceBandwidth = 1000

	slowScan = 5 * time.Second
)

// Storage implements storage.Warehouse using BadgerDB (LSM tree)
type Storage struct {
	db     *badger.DB
	name   string
	prefix []byte
	seq    *badger.Sequence
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// Relation is the name plans must scan (defaults to emission.DefaultRelation)
	Relation string

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = use defaults based on environment)
	// Recommended: 64-128 MB for local dev, 256-512 MB for production
	MaxMemoryMB int64
}

// New creates a BadgerDB warehouse
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)

	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	// BadgerDB defaults: 64 MB memtable, 5 x 64 MB = 320 MB total.
	// Default here is 16 MB memtable plus caches sized from it.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3 // ~33% for memtable
	}
	blockCacheSize := memTableSize / 2 // Block cache: 50% of memtable
	indexCacheSize := memTableSize / 4 // Index cache: 25% of memtable

	// Badger refuses fewer than 2 compactors.
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1). // Records are append-only
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024). // Records are small, keep them in the LSM
		WithNumCompactors(2).
		WithValueLogMaxEntries(5000).
		WithValueLogFileSize(64 << 20) // 64 MB value log files instead of default 2GB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	name := cfg.Relation
	if name == "" {
		name = emission.DefaultRelation
	}

	seq, err := db.GetSequence([]byte("s/"+name), sequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to lease sequence: %w", err)
	}

	return &Storage{db: db, name: name, prefix: relationPrefix(name), seq: seq}, nil
}

// Write appends records in one transaction
// Enforces context timeout/cancellation to prevent indefinite blocking
func (s *Storage) Write(ctx context.Context, records []emission.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.db.Update(func(txn *badger.Txn) error {
			for i, r := range records {
				// Check context periodically (every 100 records)
				if i%100 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				id, err := s.seq.Next()
				if err != nil {
					return fmt.Errorf("failed to allocate record id: %w", err)
				}

				value, err := json.Marshal(r)
				if err != nil {
					return fmt.Errorf("failed to encode record: %w", err)
				}

				if err := txn.Set(makeKey(s.prefix, id), value); err != nil {
					return fmt.Errorf("failed to write record: %w", err)
				}
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write operation cancelled: %w", ctx.Err())
	}
}

// Open starts a read-only transaction. The session sees the data as of Open.
func (s *Storage) Open(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session{store: s, txn: s.db.NewTransaction(false)}, nil
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	if err := s.seq.Release(); err != nil {
		log.Printf("Failed to release badger sequence: %v", err)
	}
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns error only if GC failed, nil if GC not needed or succeeded
func (s *Storage) RunGC(discardRatio float64) error {
	return s.db.RunValueLogGC(discardRatio)
}

// Stats returns row count, total emissions and on-disk size
// Enforces context timeout/cancellation to prevent indefinite blocking
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type statsResult struct {
		stats *storage.Stats
		err   error
	}
	done := make(chan statsResult, 1)

	go func() {
		stats := &storage.Stats{Relation: s.name, Backend: "badger", TotalKG: decimal.Zero}

		err := s.db.View(func(txn *badger.Txn) error {
			return s.scan(ctx, txn, func(r emission.Record) {
				stats.Rows++
				stats.TotalKG = stats.TotalKG.Add(r.CO2eKg)
			})
		})

		if err == nil {
			lsmSize, vlogSize := s.db.Size()
			stats.SizeBytes = uint64(lsmSize + vlogSize)
		}

		done <- statsResult{stats: stats, err: err}
	}()

	select {
	case res := <-done:
		return res.stats, res.err
	case <-ctx.Done():
		return nil, fmt.Errorf("stats operation cancelled: %w", ctx.Err())
	}
}

// scan decodes every record of the relation visible to txn.
func (s *Storage) scan(ctx context.Context, txn *badger.Txn, fn func(emission.Record)) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	opts.Prefix = s.prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	startTime := time.Now()
	var iterCount int

	for it.Seek(s.prefix); it.ValidForPrefix(s.prefix); it.Next() {
		iterCount++

		// Check for context cancellation every 1000 iterations
		if iterCount%1000 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		err := it.Item().Value(func(val []byte) error {
			var r emission.Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("failed to decode record: %w", err)
			}
			fn(r)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if elapsed := time.Since(startTime); elapsed > slowScan {
		log.Printf("Slow scan of %s completed in %v (%d records)", s.name, elapsed, iterCount)
	}
	return nil
}

type session struct {
	store  *Storage
	mu     sync.Mutex
	txn    *badger.Txn
	closed bool
}

func (s *session) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	if rel.Source() != s.store.name {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownRelation, rel.Source())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []relation.Row
	if err := s.store.scan(ctx, s.txn, func(r emission.Record) {
		rows = append(rows, r.Row())
	}); err != nil {
		return nil, err
	}
	return local.Evaluate(ctx, rel, emission.Schema, rows)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.txn.Discard()
	}
	return nil
}

// relationPrefix is [tag][xxhash(name) (8 bytes)]
func relationPrefix(name string) []byte {
	p := make([]byte, 9)
	p[0] = recordTag
	binary.BigEndian.PutUint64(p[1:9], xxhash.Sum64String(name))
	return p
}

// makeKey creates a key sortable in insertion order: prefix + id (8 bytes)
func makeKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)
	return key
}
