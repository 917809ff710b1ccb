package dashboard

import (
	"context"

	"github.com/nicktill/carbondash/pkg/relation"
	"github.com/nicktill/carbondash/pkg/telemetry"
)

// memoExecutor caches results for the lifetime of one render, keyed by plan
// fingerprint. Failed queries are not cached.
type memoExecutor struct {
	next    Executor
	results map[uint64][]relation.Row
	queries int
	hits    int
}

func newMemo(next Executor) *memoExecutor {
	return &memoExecutor{next: next, results: make(map[uint64][]relation.Row)}
}

func (m *memoExecutor) Materialize(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
	key := rel.Fingerprint()
	if rows, ok := m.results[key]; ok {
		m.hits++
		telemetry.MemoHit()
		return rows, nil
	}

	m.queries++
	rows, err := m.next.Materialize(ctx, rel)
	if err != nil {
		return nil, err
	}
	m.results[key] = rows
	return rows, nil
}
