package kmeanstree

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

func TestKMeansTree(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := New(mc, func(o *Options) { o.Branching = 1 })
		assert.Error(t, err)

		_, err = New(mc, func(o *Options) { o.Iterations = 0 })
		assert.Error(t, err)

		_, err = New(mc, func(o *Options) { o.LeafMax = 0 })
		assert.Error(t, err)
	})

	t.Run("TinyDataset", func(t *testing.T) {
		ds, err := dataset.FromRows([][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}})
		require.NoError(t, err)

		km, err := New(mc, func(o *Options) { o.Seed = 1 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		results, err := km.KNNSearch(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, uint32(1), results[1].ID)
	})

	t.Run("ExhaustiveChecksMatchesLinear", func(t *testing.T) {
		ds := testutil.RandomDataset(2, 400, 6)
		km, err := New(mc, func(o *Options) { o.Seed = 2 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		sp := &index.SearchParams{Checks: index.ChecksExhaustive}
		for i := 0; i < 20; i++ {
			q := ds.Row(i * 19)
			got, err := km.KNNSearch(ctx, q, 5, sp)
			require.NoError(t, err)
			assert.Equal(t, testutil.BruteForceKNN(ds, fn, q, 5), got)
		}
	})

	t.Run("ClusteredRecall", func(t *testing.T) {
		ds := testutil.ClusteredDataset(3, 16, 64, 8, 0.15)
		km, err := New(mc, func(o *Options) { o.Branching = 16; o.Seed = 3 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		total := 0.0
		for i := 0; i < 20; i++ {
			q := ds.Row(i * 29)
			got, err := km.KNNSearch(ctx, q, 10, &index.SearchParams{Checks: 128})
			require.NoError(t, err)
			total += testutil.Recall(got, testutil.BruteForceKNN(ds, fn, q, 10))
		}
		assert.Greater(t, total/20, 0.8)
	})

	t.Run("KGreaterThanN", func(t *testing.T) {
		ds := testutil.RandomDataset(4, 7, 3)
		km, err := New(mc, func(o *Options) { o.Seed = 4 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		results, err := km.KNNSearch(ctx, ds.Row(0), 99, nil)
		require.NoError(t, err)
		assert.Len(t, results, 7)
	})

	t.Run("RadiusExhaustiveMatchesReference", func(t *testing.T) {
		ds := testutil.RandomDataset(5, 200, 4)
		km, err := New(mc, func(o *Options) { o.Seed = 5 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		q := ds.Row(3)
		sp := &index.SearchParams{Checks: index.ChecksExhaustive}
		got, err := km.RadiusSearch(ctx, q, 0.4, sp)
		require.NoError(t, err)
		assert.Equal(t, testutil.BruteForceRadius(ds, fn, q, 0.4), got)
	})

	t.Run("AllDuplicateRows", func(t *testing.T) {
		rows := make([][]float32, 100)
		for i := range rows {
			rows[i] = []float32{1, 2}
		}
		ds, err := dataset.FromRows(rows)
		require.NoError(t, err)

		km, err := New(mc, func(o *Options) { o.Branching = 4; o.LeafMax = 4; o.Seed = 7 })
		require.NoError(t, err)
		require.NoError(t, km.Build(ctx, ds))

		results, err := km.KNNSearch(ctx, []float32{1, 2}, 3, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		for i, r := range results {
			assert.Zero(t, r.Distance)
			if i > 0 {
				assert.Greater(t, r.ID, results[i-1].ID)
			}
		}
	})

	t.Run("NotBuilt", func(t *testing.T) {
		km, err := New(mc)
		require.NoError(t, err)
		_, err = km.KNNSearch(ctx, []float32{1}, 1, nil)
		assert.ErrorIs(t, err, index.ErrNotBuilt)
	})
}

func TestKMeansTreeBinary(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}
	ds := testutil.ClusteredDataset(10, 8, 50, 5, 0.3)

	km, err := New(mc, func(o *Options) { o.Branching = 8; o.Seed = 10 })
	require.NoError(t, err)
	require.NoError(t, km.Build(ctx, ds))

	var buf bytes.Buffer
	require.NoError(t, km.EncodeBinary(&buf))

	restored, err := index.DecodeBinary(index.KindKMeansTree, &buf, ds, mc)
	require.NoError(t, err)

	t.Run("IdenticalResults", func(t *testing.T) {
		for _, checks := range []int{16, 128, index.ChecksExhaustive} {
			sp := &index.SearchParams{Checks: checks}
			for i := 0; i < 10; i++ {
				q := ds.Row(i * 11)
				want, err := km.KNNSearch(ctx, q, 6, sp)
				require.NoError(t, err)
				got, err := restored.KNNSearch(ctx, q, 6, sp)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}
	})

	t.Run("EncodeUnbuilt", func(t *testing.T) {
		unbuilt, err := New(mc)
		require.NoError(t, err)
		assert.ErrorIs(t, unbuilt.EncodeBinary(&bytes.Buffer{}), index.ErrNotBuilt)
	})
}
