package kdtree

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

func TestKDTree(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := New(mc, func(o *Options) { o.Trees = 0 })
		assert.Error(t, err)

		_, err = New(mc, func(o *Options) { o.LeafMax = 0 })
		assert.Error(t, err)
	})

	t.Run("TinyDataset", func(t *testing.T) {
		ds, err := dataset.FromRows([][]float32{{0, 0}, {1, 0}, {0, 1}, {5, 5}})
		require.NoError(t, err)

		kd, err := New(mc, func(o *Options) { o.Seed = 1 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		results, err := kd.KNNSearch(ctx, []float32{0, 0}, 2, nil)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, uint32(0), results[0].ID)
		assert.Equal(t, float32(0), results[0].Distance)
		assert.Equal(t, uint32(1), results[1].ID)
		assert.Equal(t, float32(1), results[1].Distance)
	})

	t.Run("ExhaustiveChecksMatchesLinear", func(t *testing.T) {
		ds := testutil.RandomDataset(2, 400, 6)
		kd, err := New(mc, func(o *Options) { o.Seed = 2 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		sp := &index.SearchParams{Checks: index.ChecksExhaustive}
		for i := 0; i < 20; i++ {
			q := ds.Row(i * 17)
			got, err := kd.KNNSearch(ctx, q, 5, sp)
			require.NoError(t, err)
			assert.Equal(t, testutil.BruteForceKNN(ds, fn, q, 5), got)
		}
	})

	t.Run("RecallImprovesWithChecks", func(t *testing.T) {
		ds := testutil.ClusteredDataset(3, 10, 100, 8, 0.2)
		kd, err := New(mc, func(o *Options) { o.Trees = 8; o.Seed = 3 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		recallAt := func(checks int) float64 {
			total := 0.0
			for i := 0; i < 20; i++ {
				q := ds.Row(i * 31)
				got, err := kd.KNNSearch(ctx, q, 10, &index.SearchParams{Checks: checks})
				require.NoError(t, err)
				total += testutil.Recall(got, testutil.BruteForceKNN(ds, fn, q, 10))
			}
			return total / 20
		}

		low := recallAt(8)
		high := recallAt(512)
		assert.GreaterOrEqual(t, high, low)
		assert.Greater(t, high, 0.9)
	})

	t.Run("KGreaterThanN", func(t *testing.T) {
		ds := testutil.RandomDataset(4, 10, 3)
		kd, err := New(mc, func(o *Options) { o.Seed = 4 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		results, err := kd.KNNSearch(ctx, ds.Row(0), 50, nil)
		require.NoError(t, err)
		assert.Len(t, results, 10)
	})

	t.Run("ResultsAscending", func(t *testing.T) {
		ds := testutil.RandomDataset(5, 300, 4)
		kd, err := New(mc, func(o *Options) { o.Seed = 5 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		results, err := kd.KNNSearch(ctx, ds.Row(42), 20, &index.SearchParams{Checks: 64})
		require.NoError(t, err)
		for i := 1; i < len(results); i++ {
			if results[i].Distance == results[i-1].Distance {
				assert.Greater(t, results[i].ID, results[i-1].ID)
			} else {
				assert.Greater(t, results[i].Distance, results[i-1].Distance)
			}
		}
	})

	t.Run("RadiusExhaustiveMatchesReference", func(t *testing.T) {
		ds := testutil.RandomDataset(6, 200, 4)
		kd, err := New(mc, func(o *Options) { o.Seed = 6 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		fn, err := mc.Func()
		require.NoError(t, err)

		q := ds.Row(0)
		sp := &index.SearchParams{Checks: index.ChecksExhaustive}
		got, err := kd.RadiusSearch(ctx, q, 0.5, sp)
		require.NoError(t, err)
		assert.Equal(t, testutil.BruteForceRadius(ds, fn, q, 0.5), got)
	})

	t.Run("DeterministicWithSeed", func(t *testing.T) {
		ds := testutil.RandomDataset(7, 200, 4)

		build := func() []index.SearchResult {
			kd, err := New(mc, func(o *Options) { o.Seed = 99 })
			require.NoError(t, err)
			require.NoError(t, kd.Build(ctx, ds))
			r, err := kd.KNNSearch(ctx, ds.Row(7), 5, &index.SearchParams{Checks: 32})
			require.NoError(t, err)
			return r
		}
		assert.Equal(t, build(), build())
	})

	t.Run("DuplicatePoints", func(t *testing.T) {
		ds, err := dataset.FromRows([][]float32{{1, 1}, {1, 1}, {1, 1}, {2, 2}})
		require.NoError(t, err)

		kd, err := New(mc, func(o *Options) { o.Seed = 8 })
		require.NoError(t, err)
		require.NoError(t, kd.Build(ctx, ds))

		results, err := kd.KNNSearch(ctx, []float32{1, 1}, 3, &index.SearchParams{Checks: index.ChecksExhaustive})
		require.NoError(t, err)
		assert.Equal(t, []uint32{0, 1, 2}, []uint32{results[0].ID, results[1].ID, results[2].ID})
	})
}

func TestKDTreeBinary(t *testing.T) {
	ctx := context.Background()
	mc := index.MetricConfig{Metric: distance.MetricL2}
	ds := testutil.RandomDataset(10, 300, 5)

	kd, err := New(mc, func(o *Options) { o.Trees = 4; o.Seed = 10 })
	require.NoError(t, err)
	require.NoError(t, kd.Build(ctx, ds))

	var buf bytes.Buffer
	require.NoError(t, kd.EncodeBinary(&buf))

	restored, err := index.DecodeBinary(index.KindKDTree, &buf, ds, mc)
	require.NoError(t, err)

	t.Run("IdenticalResults", func(t *testing.T) {
		for _, checks := range []int{16, 128, index.ChecksExhaustive} {
			sp := &index.SearchParams{Checks: checks}
			for i := 0; i < 10; i++ {
				q := ds.Row(i * 13)
				want, err := kd.KNNSearch(ctx, q, 7, sp)
				require.NoError(t, err)
				got, err := restored.KNNSearch(ctx, q, 7, sp)
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

	t.Run("TruncatedStream", func(t *testing.T) {
		var full bytes.Buffer
		require.NoError(t, kd.EncodeBinary(&full))
		truncated := bytes.NewReader(full.Bytes()[:full.Len()/2])
		_, err := index.DecodeBinary(index.KindKDTree, truncated, ds, mc)
		assert.Error(t, err)
	})
}
