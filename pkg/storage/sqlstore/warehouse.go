package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/storage"
)

// Warehouse implements storage.Warehouse on a SQL database.
type Warehouse struct {
	db      *sql.DB
	dialect Dialect
	name    string
	table   string
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, d Dialect, dsn, relationName string) (*Warehouse, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s dsn is required", d.Name)
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", d.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.Name, err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	w, err := New(db, d, relationName)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// New wraps an open database handle. The warehouse owns db from now on.
func New(db *sql.DB, d Dialect, relationName string) (*Warehouse, error) {
	if relationName == "" {
		relationName = emission.DefaultRelation
	}
	table, err := d.QuoteRelation(relationName)
	if err != nil {
		return nil, err
	}
	return &Warehouse{db: db, dialect: d, name: relationName, table: table}, nil
}

// EnsureTable creates the source table when it does not exist. Views
// provisioned by the warehouse owner are left alone.
func (w *Warehouse) EnsureTable(ctx context.Context) error {
	ddl, err := w.dialect.CreateTable(w.name, emission.Schema)
	if err != nil {
		return err
	}
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", w.name, err)
	}
	return nil
}

// Write appends records in one transaction.
func (w *Warehouse) Write(ctx context.Context, records []emission.Record) error {
	if len(records) == 0 {
		return nil
	}

	cols := emission.Schema.Columns()
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = w.dialect.QuoteIdent(string(c))
		marks[i] = "?"
	}
	insert := "INSERT INTO " + w.table + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		row := r.Row()
		args := make([]any, len(cols))
		for j, c := range cols {
			args[j] = bindValue(row[c])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Open reserves one connection for the session.
func (w *Warehouse) Open(ctx context.Context) (storage.Session, error) {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{w: w, conn: conn}, nil
}

// Stats counts rows and sums emissions. Size is not reported.
func (w *Warehouse) Stats(ctx context.Context) (*storage.Stats, error) {
	q := "SELECT COUNT(*), SUM(" + w.dialect.QuoteIdent(string(emission.ColCO2eKg)) + ") FROM " + w.table

	var rows int64
	var total decimal.NullDecimal
	if err := w.db.QueryRowContext(ctx, q).Scan(&rows, &total); err != nil {
		return nil, fmt.Errorf("stats %s: %w", w.name, err)
	}

	stats := &storage.Stats{
		Relation: w.name,
		Rows:     uint64(rows),
		TotalKG:  decimal.Zero,
		Backend:  w.dialect.Name,
	}
	if total.Valid {
		stats.TotalKG = total.Decimal
	}
	return stats, nil
}

// Close closes the database handle.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

type session struct {
	w      *Warehouse
	mu     sync.Mutex
	conn   *sql.Conn
	closed bool
}

func (s *session) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrSessionClosed
	}
	if rel.Source() != s.w.name {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownRelation, rel.Source())
	}

	q, err := Compile(s.w.dialect, rel, emission.Schema)
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.w.name, err)
	}
	defer rows.Close()

	out := make([]relation.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows, q.Schema)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.w.name, err)
	}
	return out, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func scanRow(rows *sql.Rows, schema relation.Schema) (relation.Row, error) {
	dest := make([]any, len(schema))
	for i, f := range schema {
		switch f.Kind {
		case relation.KindInt:
			dest[i] = new(sql.NullInt64)
		case relation.KindDecimal:
			dest[i] = new(decimal.NullDecimal)
		default:
			dest[i] = new(sql.NullString)
		}
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}

	row := make(relation.Row, len(schema))
	for i, f := range schema {
		v := relation.Null()
		switch d := dest[i].(type) {
		case *sql.NullInt64:
			if d.Valid {
				v = relation.Int(d.Int64)
			}
		case *decimal.NullDecimal:
			if d.Valid {
				v = relation.Decimal(d.Decimal)
			}
		case *sql.NullString:
			if d.Valid {
				v = relation.String(d.String)
			}
		}
		row[f.Name] = v
	}
	return row, nil
}
