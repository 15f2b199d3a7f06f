package composite

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/testutil"
)

func TestComposite(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}

	t.Run("TinyDataset", func(t *testing.T) {
		ds, err := dataset.FromRows([][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}})
		require.NoError(t, err)

		c, err := New(mc, func(o *Options) { o.Seed = 1 })
		require.NoError(t, err)
		require.NoError(t, c.Build(ctx, ds))

		results, err := c.KNNSearch(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(1), results[1].ID)
	})

	t.Run("ExhaustiveChecksMatchesLinear", func(t *testing.T) {
		ds := testutil.RandomDataset(2, 300, 5)
		c, err := New(mc, func(o *Options) { o.Seed = 2 })
		require.NoError(t, err)
		require.NoError(t, c.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		sp := &index.SearchParams{Checks: index.ChecksExhaustive}
		for i := 0; i < 15; i++ {
			q := ds.Row(i * 7)
			got, err := c.KNNSearch(ctx, q, 4, sp)
			require.NoError(t, err)
			assert.Equal(t, testutil.BruteForceKNN(ds, fn, q, 4), got)
		}
	})

	t.Run("AllDuplicateRows", func(t *testing.T) {
		rows := make([][]float32, 80)
		for i := range rows {
			rows[i] = []float32{3, 3}
		}
		ds, err := dataset.FromRows(rows)
		require.NoError(t, err)

		c, err := New(mc, func(o *Options) { o.Seed = 7 })
		require.NoError(t, err)
		require.NoError(t, c.Build(ctx, ds))

		results, err := c.KNNSearch(ctx, []float32{3, 3}, 5, nil)
		require.NoError(t, err)
		require.Len(t, results, 5)
		for _, r := range results {
			assert.Zero(t, r.Distance)
		}
	})

	t.Run("MergeDeduplicates", func(t *testing.T) {
		a := []index.SearchResult{{ID: 1, Distance: 1}, {ID: 2, Distance: 2}}
		b := []index.SearchResult{{ID: 2, Distance: 2}, {ID: 3, Distance: 0.5}}

		merged := merge(a, b, 0)
		require.Len(t, merged, 3)
		assert.Equal(t, uint32(3), merged[0].ID)
		assert.Equal(t, uint32(1), merged[1].ID)
		assert.Equal(t, uint32(2), merged[2].ID)
	})

	t.Run("MergeLimitKeepsClosest", func(t *testing.T) {
		a := []index.SearchResult{{ID: 1, Distance: 3}, {ID: 2, Distance: 1}}
		b := []index.SearchResult{{ID: 3, Distance: 2}}

		merged := merge(a, b, 2)
		require.Len(t, merged, 2)
		assert.Equal(t, uint32(2), merged[0].ID)
		assert.Equal(t, uint32(3), merged[1].ID)
	})

	t.Run("RecallAtLeastHalfBudgetKDTree", func(t *testing.T) {
		// The merged candidate set is a superset of either sub-search,
		// so results stay well-formed and ascending.
		ds := testutil.ClusteredDataset(3, 8, 64, 6, 0.2)
		c, err := New(mc, func(o *Options) { o.Seed = 3 })
		require.NoError(t, err)
		require.NoError(t, c.Build(ctx, ds))

		results, err := c.KNNSearch(ctx, ds.Row(10), 10, &index.SearchParams{Checks: 64})
		require.NoError(t, err)
		require.Len(t, results, 10)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
		}
	})

	t.Run("RadiusMaxNeighborsCap", func(t *testing.T) {
		ds := testutil.RandomDataset(4, 200, 3)
		c, err := New(mc, func(o *Options) { o.Seed = 4 })
		require.NoError(t, err)
		require.NoError(t, c.Build(ctx, ds))

		sp := &index.SearchParams{Checks: index.ChecksExhaustive, MaxNeighbors: 5}
		results, err := c.RadiusSearch(ctx, ds.Row(0), 10, sp)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), 5)
	})

	t.Run("NotBuilt", func(t *testing.T) {
		c, err := New(mc)
		require.NoError(t, err)
		_, err = c.KNNSearch(ctx, []float32{0}, 1, nil)
		assert.ErrorIs(t, err, index.ErrNotBuilt)
	})
}

func TestCompositeBinary(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}
	ds := testutil.RandomDataset(10, 250, 4)

	c, err := New(mc, func(o *Options) { o.Seed = 10 })
	require.NoError(t, err)
	require.NoError(t, c.Build(ctx, ds))

	var buf bytes.Buffer
	require.NoError(t, c.EncodeBinary(&buf))

	restored, err := index.DecodeBinary(index.KindComposite, &buf, ds, mc)
	require.NoError(t, err)

	for _, checks := range []int{32, index.ChecksExhaustive} {
		sp := &index.SearchParams{Checks: checks}
		for i := 0; i < 8; i++ {
			q := ds.Row(i * 5)
			want, err := c.KNNSearch(ctx, q, 5, sp)
			require.NoError(t, err)
			got, err := restored.KNNSearch(ctx, q, 5, sp)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}
