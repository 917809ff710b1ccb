package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nicktill/carbondash/pkg/emission"
	"github.com/nicktill/carbondash/pkg/relation"
)

func TestMemo_ReusesIdenticalPlans(t *testing.T) {
	calls := 0
	next := executorFunc(func(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
		calls++
		return []relation.Row{{emission.ColCity: relation.String("Seoul")}}, nil
	})
	memo := newMemo(next)

	rel := scan().Distinct(emission.ColCity)
	first, err := memo.Materialize(context.Background(), rel)
	require.NoError(t, err)
	second, err := memo.Materialize(context.Background(), scan().Distinct(emission.ColCity))
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
	require.Equal(t, 1, memo.queries)
	require.Equal(t, 1, memo.hits)

	_, err = memo.Materialize(context.Background(), scan().Distinct(emission.ColGender))
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestMemo_DoesNotCacheFailures(t *testing.T) {
	calls := 0
	next := executorFunc(func(ctx context.Context, rel relation.Relation) ([]relation.Row, error) {
		calls++
		if calls == 1 {
			return nil, errBoom
		}
		return []relation.Row{}, nil
	})
	memo := newMemo(next)

	_, err := memo.Materialize(context.Background(), scan())
	require.ErrorIs(t, err, errBoom)

	_, err = memo.Materialize(context.Background(), scan())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 0, memo.hits)
}
