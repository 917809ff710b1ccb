package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/storage/local"
)

// Storage holds the source relation in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	name    string
	records []emission.Record
	mu      sync.RWMutex
}

// New creates an in-memory warehouse holding one relation called name
func New(name string) *Storage {
	return &Storage{
		name:    name,
		records: make([]emission.Record, 0, 1024),
	}
}

// Write appends records
func (s *Storage) Write(ctx context.Context, records []emission.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, records...)
	return nil
}

// Open snapshots the current records. Later writes are not visible to the session.
func (s *Storage) Open(ctx context.Context) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return &session{name: s.name, rows: emission.Rows(s.records)}, nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns row count and total emissions
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, r := range s.records {
		total = total.Add(r.CO2eKg)
	}

	return &storage.Stats{
		Relation: s.name,
		Rows:     uint64(len(s.records)),
		TotalKG:  total,
		// Rough size estimate (each record ~200 bytes)
		SizeBytes: uint64(len(s.records)) * 200,
		Backend:   "memory",
	}, nil
}

type session struct {
	name   string
	rows   []relation.Row
	mu     sync.Mutex
	closed bool
}

func (s *session) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	s.mu.Lock()
	closed, rows := s.closed, s.rows
	s.mu.Unlock()
	if closed {
		return nil, storage.ErrSessionClosed
	}
	if rel.Source() != s.name {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownRelation, rel.Source())
	}
	return local.Evaluate(ctx, rel, emission.Schema, rows)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rows = nil
	return nil
}
