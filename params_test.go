package flanngo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flanngo/index"
)

func TestParamsValidate(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		assert.NoError(t, DefaultParams().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"UnknownAlgorithm", func(p *Params) { p.Algorithm = Algorithm(99) }, "algorithm"},
		{"ZeroTrees", func(p *Params) { p.Trees = 0 }, "trees"},
		{"BranchingTooSmall", func(p *Params) { p.Branching = 1 }, "branching"},
		{"ZeroIterations", func(p *Params) { p.Iterations = 0 }, "iterations"},
		{"ZeroLeafMax", func(p *Params) { p.LeafMax = 0 }, "leaf_max"},
		{"ZeroTables", func(p *Params) { p.Tables = 0 }, "tables"},
		{"KeyBitsOutOfRange", func(p *Params) { p.KeyBits = 31 }, "key_bits"},
		{"NegativeChecks", func(p *Params) { p.Checks = -2 }, "checks"},
		{"NegativeCores", func(p *Params) { p.Cores = -1 }, "cores"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()

			var invalid *ErrInvalidParameters
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}

	t.Run("ExhaustiveChecksAllowed", func(t *testing.T) {
		p := DefaultParams()
		p.Checks = index.ChecksExhaustive
		assert.NoError(t, p.Validate())
	})

	t.Run("PrecisionOnlyCheckedWhenAutotuned", func(t *testing.T) {
		p := DefaultParams()
		p.TargetPrecision = 2
		assert.NoError(t, p.Validate())

		p.Algorithm = AlgorithmAutotuned
		err := p.Validate()

		var invalid *ErrInvalidParameters
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "target_precision", invalid.Field)
	})
}

func TestParamsCodec(t *testing.T) {
	p := DefaultParams()
	p.Algorithm = AlgorithmComposite
	p.Trees = 7
	p.Checks = index.ChecksExhaustive
	p.Cores = 3
	p.Seed = -12345

	var buf bytes.Buffer
	require.NoError(t, encodeParams(&buf, p))
	assert.Equal(t, paramsBlockSize, buf.Len())

	got, err := decodeParams(&buf)
	require.NoError(t, err)

	// Metric, MinkowskiP and Compression travel in the file header.
	p.Metric = got.Metric
	p.MinkowskiP = got.MinkowskiP
	p.Compression = got.Compression
	assert.Equal(t, p, got)
}

func TestAlgorithmString(t *testing.T) {
	assert.Equal(t, "linear", AlgorithmLinear.String())
	assert.Equal(t, "kdtree", AlgorithmKDTree.String())
	assert.Equal(t, "kmeans", AlgorithmKMeans.String())
	assert.Equal(t, "composite", AlgorithmComposite.String())
	assert.Equal(t, "lsh", AlgorithmLSH.String())
	assert.Equal(t, "autotuned", AlgorithmAutotuned.String())
	assert.Equal(t, "unknown", Algorithm(200).String())
}
