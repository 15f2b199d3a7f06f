package flanngo

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flanngo/blobstore"
	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/persistence"
	"github.com/hupe1980/flanngo/testutil"
)

func smallDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRows([][]float32{
		{0, 0},
		{1, 0},
		{0, 1},
		{5, 5},
	})
	require.NoError(t, err)
	return ds
}

func queryOf(t *testing.T, rows ...[]float32) *dataset.Dataset {
	t.Helper()
	q, err := dataset.FromRows(rows)
	require.NoError(t, err)
	return q
}

func linearParams() Params {
	p := DefaultParams()
	p.Algorithm = AlgorithmLinear
	return p
}

func TestNew(t *testing.T) {
	t.Run("NilDataset", func(t *testing.T) {
		_, err := New(nil, DefaultParams())
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("InvalidParams", func(t *testing.T) {
		p := DefaultParams()
		p.Trees = 0
		_, err := New(smallDataset(t), p)

		var invalid *ErrInvalidParameters
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "trees", invalid.Field)
	})

	t.Run("InvalidChecks", func(t *testing.T) {
		p := DefaultParams()
		p.Checks = -7
		_, err := New(smallDataset(t), p)

		var invalid *ErrInvalidParameters
		assert.ErrorAs(t, err, &invalid)
	})
}

func TestKNNSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("NearestTwo", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		indices, dists, err := idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 2)
		require.NoError(t, err)
		assert.Equal(t, [][]int{{0, 1}}, indices)
		assert.Equal(t, [][]float64{{0, 1}}, dists)
	})

	t.Run("LazyBuild", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		assert.Equal(t, float32(0), idx.Speedup())
		_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 1)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, idx.Speedup(), float32(1))
	})

	t.Run("KLargerThanDataset", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		indices, _, err := idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 10)
		require.NoError(t, err)
		assert.Len(t, indices[0], 4)
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 0)
		assert.ErrorIs(t, err, ErrInvalidK)
	})

	t.Run("NilQueries", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		_, _, err = idx.KNNSearch(ctx, nil, 1)
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0, 0}), 1)

		var mismatch *ErrDimensionMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 2, mismatch.Expected)
		assert.Equal(t, 3, mismatch.Actual)
	})

	t.Run("BatchQueries", func(t *testing.T) {
		idx, err := New(smallDataset(t), linearParams())
		require.NoError(t, err)
		defer idx.Close()

		queries := queryOf(t, []float32{0, 0}, []float32{5, 5}, []float32{1, 0})
		indices, dists, err := idx.KNNSearch(ctx, queries, 1)
		require.NoError(t, err)
		require.Len(t, indices, 3)
		assert.Equal(t, [][]int{{0}, {3}, {1}}, indices)
		assert.Equal(t, [][]float64{{0}, {0}, {0}}, dists)
	})
}

func TestRadiusSearch(t *testing.T) {
	ctx := context.Background()

	idx, err := New(smallDataset(t), linearParams())
	require.NoError(t, err)
	defer idx.Close()

	t.Run("WithinRadius", func(t *testing.T) {
		indices, dists, err := idx.RadiusSearch(ctx, []float32{0, 0}, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, indices)
		assert.Equal(t, []float64{0, 1, 1}, dists)
	})

	t.Run("MaxNeighborsKeepsClosest", func(t *testing.T) {
		indices, _, err := idx.RadiusSearch(ctx, []float32{0, 0}, 1, WithMaxNeighbors(1))
		require.NoError(t, err)
		assert.Equal(t, []int{0}, indices)
	})

	t.Run("NoneInRange", func(t *testing.T) {
		indices, dists, err := idx.RadiusSearch(ctx, []float32{100, 100}, 1)
		require.NoError(t, err)
		assert.Empty(t, indices)
		assert.Empty(t, dists)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, _, err := idx.RadiusSearch(ctx, []float32{0}, 1)

		var mismatch *ErrDimensionMismatch
		assert.ErrorAs(t, err, &mismatch)
	})
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("ExplicitBuildIsIdempotent", func(t *testing.T) {
		idx, err := New(testutil.RandomDataset(1, 500, 8), DefaultParams())
		require.NoError(t, err)
		defer idx.Close()

		speedup, err := idx.Build(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, speedup, float32(1))

		again, err := idx.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, speedup, again)
	})

	t.Run("Autotuned", func(t *testing.T) {
		p := DefaultParams()
		p.Algorithm = AlgorithmAutotuned
		p.TargetPrecision = 0.8
		p.Seed = 42

		idx, err := New(testutil.ClusteredDataset(7, 10, 100, 8, 0.05), p)
		require.NoError(t, err)
		defer idx.Close()

		speedup, err := idx.Build(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, speedup, float32(1))

		// The selection replaces the autotuned tag with a concrete family.
		assert.NotEqual(t, AlgorithmAutotuned, idx.Params().Algorithm)

		indices, _, err := idx.KNNSearch(ctx, queryOf(t, []float32{0, 0, 0, 0, 0, 0, 0, 0}), 1)
		require.NoError(t, err)
		assert.Len(t, indices[0], 1)
	})
}

func TestAlgorithmsAgreeWithBruteForce(t *testing.T) {
	ctx := context.Background()
	ds := testutil.RandomDataset(3, 400, 8)
	queries := testutil.RandomDataset(4, 10, 8)

	for _, algo := range []Algorithm{AlgorithmLinear, AlgorithmKDTree, AlgorithmKMeans, AlgorithmComposite, AlgorithmLSH} {
		t.Run(algo.String(), func(t *testing.T) {
			p := DefaultParams()
			p.Algorithm = algo
			p.Seed = 11

			idx, err := New(ds, p)
			require.NoError(t, err)
			defer idx.Close()

			indices, dists, err := idx.KNNSearch(ctx, queries, 5, WithExhaustiveChecks())
			require.NoError(t, err)

			for qi := 0; qi < queries.Rows(); qi++ {
				want := testutil.BruteForceKNN(ds, distance.SquaredL2, queries.Row(qi), 5)
				require.Len(t, indices[qi], 5)
				for j, r := range want {
					assert.Equal(t, int(r.ID), indices[qi][j])
					assert.InDelta(t, float64(r.Distance), dists[qi][j], 1e-4)
				}
			}
		})
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()

	idx, err := New(smallDataset(t), linearParams())
	require.NoError(t, err)

	_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 1)
	require.NoError(t, err)

	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 1)
	assert.ErrorIs(t, err, ErrIndexClosed)

	_, _, err = idx.RadiusSearch(ctx, []float32{0, 0}, 1)
	assert.ErrorIs(t, err, ErrIndexClosed)

	_, err = idx.Build(ctx)
	assert.ErrorIs(t, err, ErrIndexClosed)

	err = idx.Save(ctx, filepath.Join(t.TempDir(), "closed.flann"))
	assert.ErrorIs(t, err, ErrIndexClosed)
}

func TestCloseDuringSearch(t *testing.T) {
	ctx := context.Background()

	idx, err := New(testutil.RandomDataset(7, 1000, 8), linearParams())
	require.NoError(t, err)

	_, err = idx.Build(ctx)
	require.NoError(t, err)

	queries := testutil.RandomDataset(8, 4, 8)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := idx.KNNSearch(ctx, queries, 3)
			if err != nil {
				assert.ErrorIs(t, err, ErrIndexClosed)
			}
		}()
	}
	require.NoError(t, idx.Close())
	wg.Wait()
}

func TestConcurrentSearch(t *testing.T) {
	ctx := context.Background()

	idx, err := New(testutil.RandomDataset(5, 1000, 8), DefaultParams())
	require.NoError(t, err)
	defer idx.Close()

	queries := testutil.RandomDataset(6, 4, 8)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := idx.KNNSearch(ctx, queries, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	ds := testutil.RandomDataset(8, 300, 8)
	queries := testutil.RandomDataset(9, 5, 8)

	roundTrip := func(t *testing.T, p Params) {
		t.Helper()
		p.Seed = 21

		idx, err := New(ds, p)
		require.NoError(t, err)
		defer idx.Close()

		wantIdx, wantDist, err := idx.KNNSearch(ctx, queries, 3)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "index.flann")
		require.NoError(t, idx.Save(ctx, path))

		loaded, err := Load(ctx, path, ds)
		require.NoError(t, err)
		defer loaded.Close()

		assert.Equal(t, idx.Params().Algorithm, loaded.Params().Algorithm)

		gotIdx, gotDist, err := loaded.KNNSearch(ctx, queries, 3)
		require.NoError(t, err)
		assert.Equal(t, wantIdx, gotIdx)
		assert.Equal(t, wantDist, gotDist)
	}

	t.Run("PerAlgorithm", func(t *testing.T) {
		for _, algo := range []Algorithm{AlgorithmLinear, AlgorithmKDTree, AlgorithmKMeans, AlgorithmComposite, AlgorithmLSH} {
			t.Run(algo.String(), func(t *testing.T) {
				p := DefaultParams()
				p.Algorithm = algo
				roundTrip(t, p)
			})
		}
	})

	t.Run("PerCompression", func(t *testing.T) {
		for _, c := range []persistence.Compression{persistence.CompressionNone, persistence.CompressionLZ4, persistence.CompressionZSTD} {
			t.Run(c.String(), func(t *testing.T) {
				p := DefaultParams()
				p.Compression = c
				roundTrip(t, p)
			})
		}
	})

	t.Run("ShapeMismatch", func(t *testing.T) {
		idx, err := New(ds, DefaultParams())
		require.NoError(t, err)
		defer idx.Close()

		path := filepath.Join(t.TempDir(), "index.flann")
		require.NoError(t, idx.Save(ctx, path))

		_, err = Load(ctx, path, testutil.RandomDataset(8, 299, 8))

		var mismatch *ErrDatasetShapeMismatch
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 300, mismatch.WantRows)
		assert.Equal(t, 299, mismatch.GotRows)
	})

	t.Run("CorruptedFile", func(t *testing.T) {
		idx, err := New(ds, DefaultParams())
		require.NoError(t, err)
		defer idx.Close()

		path := filepath.Join(t.TempDir(), "index.flann")
		require.NoError(t, idx.Save(ctx, path))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		raw[len(raw)-1] ^= 0xFF
		require.NoError(t, os.WriteFile(path, raw, 0o644))

		_, err = Load(ctx, path, ds)
		assert.ErrorIs(t, err, persistence.ErrChecksumMismatch)
	})

	t.Run("OversizedHeaderBlock", func(t *testing.T) {
		idx, err := New(ds, DefaultParams())
		require.NoError(t, err)
		defer idx.Close()

		path := filepath.Join(t.TempDir(), "index.flann")
		require.NoError(t, idx.Save(ctx, path))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		// Overwrite the structure size field with an absurd value.
		for i := 32; i < 40; i++ {
			raw[i] = 0xFF
		}
		require.NoError(t, os.WriteFile(path, raw, 0o644))

		_, err = Load(ctx, path, ds)
		assert.ErrorIs(t, err, ErrRead)
	})

	t.Run("NotAnIndexFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage")
		require.NoError(t, os.WriteFile(path, make([]byte, 256), 0o644))

		_, err := Load(ctx, path, ds)
		assert.ErrorIs(t, err, persistence.ErrInvalidMagic)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "nope"), ds)
		assert.ErrorIs(t, err, ErrRead)
	})

	t.Run("NilDataset", func(t *testing.T) {
		idx, err := New(ds, DefaultParams())
		require.NoError(t, err)
		defer idx.Close()

		path := filepath.Join(t.TempDir(), "index.flann")
		require.NoError(t, idx.Save(ctx, path))

		_, err = Load(ctx, path, nil)
		assert.ErrorIs(t, err, ErrEmptyDataset)
	})
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()
	ds := testutil.RandomDataset(12, 200, 8)
	queries := testutil.RandomDataset(13, 3, 8)

	store := blobstore.NewMemoryStore()

	idx, err := New(ds, DefaultParams())
	require.NoError(t, err)
	defer idx.Close()

	wantIdx, _, err := idx.KNNSearch(ctx, queries, 2)
	require.NoError(t, err)

	require.NoError(t, idx.SaveToStore(ctx, store, "indexes/small"))

	names, err := store.List(ctx, "indexes/")
	require.NoError(t, err)
	assert.Equal(t, []string{"indexes/small"}, names)

	loaded, err := LoadFromStore(ctx, store, "indexes/small", ds)
	require.NoError(t, err)
	defer loaded.Close()

	gotIdx, _, err := loaded.KNNSearch(ctx, queries, 2)
	require.NoError(t, err)
	assert.Equal(t, wantIdx, gotIdx)

	t.Run("MissingBlob", func(t *testing.T) {
		_, err := LoadFromStore(ctx, store, "indexes/none", ds)
		assert.ErrorIs(t, err, ErrRead)
	})
}

func TestMetricsCollection(t *testing.T) {
	ctx := context.Background()
	mc := &BasicMetricsCollector{}

	idx, err := New(smallDataset(t), linearParams(), WithMetricsCollector(mc))
	require.NoError(t, err)
	defer idx.Close()

	_, _, err = idx.KNNSearch(ctx, queryOf(t, []float32{0, 0}), 2)
	require.NoError(t, err)
	_, _, err = idx.RadiusSearch(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.NoError(t, idx.Save(ctx, filepath.Join(t.TempDir(), "m.flann")))

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.BuildCount)
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.RadiusCount)
	assert.Equal(t, int64(1), stats.SaveCount)
	assert.Positive(t, stats.SaveTotalBytes)
	assert.Zero(t, stats.SearchErrors)
}
