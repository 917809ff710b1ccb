package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
)

var (
	// ErrUnknownRelation is returned when a plan scans a relation the backend does not hold.
	ErrUnknownRelation = errors.New("unknown relation")

	// ErrSessionClosed is returned by Materialize after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Warehouse is a tabular query executor over the emission relation.
// Implementations: memory (testing), badger (local persistent), sqlstore (MySQL/SQLite warehouse)
type Warehouse interface {
	// Open starts a read session. Callers must Close it.
	Open(ctx context.Context) (Session, error)

	// Stats returns usage info for the source relation
	Stats(ctx context.Context) (*Stats, error)

	// Close cleanly shuts down the warehouse
	Close() error
}

// Session runs plans against a consistent view of the warehouse.
type Session interface {
	// Materialize evaluates rel and returns its rows
	Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error)

	// Close releases the session
	Close() error
}

// Loader appends records to the source relation. Loading is append-only.
type Loader interface {
	Write(ctx context.Context, records []emission.Record) error
}

// Stats provides source relation health and usage info
type Stats struct {
	// Name of the source relation
	Relation string `json:"relation"`

	// Total rows stored
	Rows uint64 `json:"rows"`

	// Sum of CO2E_KG over all rows
	TotalKG decimal.Decimal `json:"total_kg"`

	// Storage size in bytes (0 when the backend cannot tell)
	SizeBytes uint64 `json:"size_bytes"`

	// Backend name
	Backend string `json:"backend"`
}
