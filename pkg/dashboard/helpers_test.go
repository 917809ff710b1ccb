package dashboard

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/storage"
	"github.com/nicktill/carbondash/pkg/storage/memory"
)

func rec(year int, month, city, gender, age, lifestyle, usage, kg string) emission.Record {
	ym := ""
	if year != 0 && month != "" {
		ym = strconv.Itoa(year) + "-" + month
	}
	return emission.Record{
		Year:      year,
		Month:     month,
		YearMonth: ym,
		City:      city,
		Gender:    gender,
		AgeGroup:  age,
		Lifestyle: lifestyle,
		Usage:     usage,
		CO2eKg:    decimal.RequireFromString(kg),
	}
}

func fixtureRecords() []emission.Record {
	return []emission.Record{
		rec(2023, "01", "Seoul", "F", "20s", "Eco", "Transit", "10"),
		rec(2023, "01", "Seoul", "F", "20s", "Eco", "Food", "5"),
		rec(2023, "02", "Seoul", "F", "20s", "Eco", "Transit", "6"),
		rec(2023, "02", "Seoul", "F", "20s", "Eco", "Food", "4"),
		rec(2023, "02", "Seoul", "F", "20s", "Eco", "Energy", "2"),
		rec(2023, "03", "Seoul", "F", "20s", "Eco", "Food", "3"),
		rec(2023, "02", "Seoul", "M", "30s", "Urban", "Transit", "7"),
		rec(2024, "01", "Seoul", "F", "20s", "Eco", "Transit", "1"),
		rec(2023, "03", "Busan", "F", "20s", "Eco", "Energy", "9"),
		rec(2023, "02", "Seoul", "", "20s", "Eco", "Food", "1"),
	}
}

// februarySelection picks the primary scope covering fixture rows 3-5.
func februarySelection() Selection {
	return Selection{
		emission.ColYear:      "2023",
		emission.ColMonth:     "02",
		emission.ColCity:      "Seoul",
		emission.ColGender:    "F",
		emission.ColAgeGroup:  "20s",
		emission.ColLifestyle: "Eco",
	}
}

func newStore(t *testing.T, records []emission.Record) *memory.Storage {
	t.Helper()
	store := memory.New(emission.DefaultRelation)
	if err := store.Write(context.Background(), records); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return store
}

// openSession returns a session over records for pipeline-level tests.
func openSession(t *testing.T, records []emission.Record) storage.Session {
	t.Helper()
	sess, err := newStore(t, records).Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func scan() relation.Relation { return relation.Scan(emission.DefaultRelation) }

func kg(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// countingWarehouse records session lifecycle and query counts.
type countingWarehouse struct {
	storage.Warehouse

	mu      sync.Mutex
	opened  int
	closed  int
	queries int
}

func (w *countingWarehouse) Open(ctx context.Context) (storage.Session, error) {
	sess, err := w.Warehouse.Open(ctx)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.opened++
	w.mu.Unlock()
	return &countingSession{Session: sess, w: w}, nil
}

type countingSession struct {
	storage.Session
	w *countingWarehouse
}

func (s *countingSession) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	s.w.mu.Lock()
	s.w.queries++
	s.w.mu.Unlock()
	return s.Session.Materialize(ctx, rel)
}

func (s *countingSession) Close() error {
	s.w.mu.Lock()
	s.w.closed++
	s.w.mu.Unlock()
	return s.Session.Close()
}

var errBoom = errors.New("warehouse unreachable")

// failingWarehouse fails every query after the first failAfter.
type failingWarehouse struct {
	storage.Warehouse
	failAfter int
}

func (w *failingWarehouse) Open(ctx context.Context) (storage.Session, error) {
	sess, err := w.Warehouse.Open(ctx)
	if err != nil {
		return nil, err
	}
	return &failingSession{Session: sess, left: w.failAfter}, nil
}

type failingSession struct {
	storage.Session
	left int
}

func (s *failingSession) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	if s.left <= 0 {
		return nil, errBoom
	}
	s.left--
	return s.Session.Materialize(ctx, rel)
}

type recordingObserver struct {
	successes int
	failures  []error
}

func (o *recordingObserver) RecordSuccess()          { o.successes++ }
func (o *recordingObserver) RecordFailure(err error) { o.failures = append(o.failures, err) }
