package linear

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/testutil"
)

func TestLinear(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}

	ds, err := dataset.FromRows([][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}})
	require.NoError(t, err)

	l, err := New(mc)
	require.NoError(t, err)
	require.NoError(t, l.Build(ctx, ds))

	t.Run("KNNSearch", func(t *testing.T) {
		results, err := l.KNNSearch(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)

		// (1,0) and (0,1) tie at distance 1; the lower row index wins.
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, float32(0), results[0].Distance)
		assert.Equal(t, uint32(1), results[1].ID)
		assert.Equal(t, float32(1), results[1].Distance)
	})

	t.Run("KGreaterThanN", func(t *testing.T) {
		results, err := l.KNNSearch(ctx, []float32{0, 0}, 100, nil)
		require.NoError(t, err)
		assert.Len(t, results, ds.Rows())
	})

	t.Run("InvalidK", func(t *testing.T) {
		_, err := l.KNNSearch(ctx, []float32{0, 0}, 0, nil)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := l.KNNSearch(ctx, []float32{0, 0, 0}, 1, nil)
		var e *index.ErrDimensionMismatch
		assert.ErrorAs(t, err, &e)
	})

	t.Run("NotBuilt", func(t *testing.T) {
		unbuilt, err := New(mc)
		require.NoError(t, err)
		_, err = unbuilt.KNNSearch(ctx, []float32{0, 0}, 1, nil)
		assert.ErrorIs(t, err, index.ErrNotBuilt)
	})

	t.Run("RadiusSearch", func(t *testing.T) {
		results, err := l.RadiusSearch(ctx, []float32{0, 0}, 1.0, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, uint32(0), results[0].ID)
		for _, r := range results {
			assert.LessOrEqual(t, r.Distance, float32(1.0))
		}
	})

	t.Run("RadiusMaxNeighbors", func(t *testing.T) {
		sp := &index.SearchParams{MaxNeighbors: 2}
		results, err := l.RadiusSearch(ctx, []float32{0, 0}, 100, sp)
		require.NoError(t, err)
		require.Len(t, results, 2)
		// Truncation keeps the closest.
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(1), results[1].ID)
	})

	t.Run("MatchesBruteForceReference", func(t *testing.T) {
		big := testutil.RandomDataset(1, 500, 8)
		lin, err := New(mc)
		require.NoError(t, err)
		require.NoError(t, lin.Build(ctx, big))

		fn, err := mc.Func()
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			q := big.Row(i * 37)
			got, err := lin.KNNSearch(ctx, q, 10, nil)
			require.NoError(t, err)
			want := testutil.BruteForceKNN(big, fn, q, 10)
			assert.Equal(t, want, got)
		}
	})

	t.Run("SingleRowDataset", func(t *testing.T) {
		one, err := dataset.FromRows([][]float32{{3, 4}})
		require.NoError(t, err)
		lin, err := New(mc)
		require.NoError(t, err)
		require.NoError(t, lin.Build(ctx, one))

		results, err := lin.KNNSearch(ctx, []float32{0, 0}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, float32(25), results[0].Distance)
	})
}
