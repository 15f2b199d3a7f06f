package flanngo

import (
	"io"

	"github.com/hupe1980/flanngo/distance"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/persistence"
)

// Algorithm selects the index family.
type Algorithm uint8

const (
	// AlgorithmLinear is an exact exhaustive scan.
	AlgorithmLinear Algorithm = iota
	// AlgorithmKDTree is a randomized k-d tree forest.
	AlgorithmKDTree
	// AlgorithmKMeans is a hierarchical k-means tree.
	AlgorithmKMeans
	// AlgorithmComposite combines a k-d forest and a k-means tree.
	AlgorithmComposite
	// AlgorithmLSH hashes vectors with signed random projections.
	AlgorithmLSH
	// AlgorithmAutotuned selects family and parameters by measurement.
	AlgorithmAutotuned
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmLinear:
		return "linear"
	case AlgorithmKDTree:
		return "kdtree"
	case AlgorithmKMeans:
		return "kmeans"
	case AlgorithmComposite:
		return "composite"
	case AlgorithmLSH:
		return "lsh"
	case AlgorithmAutotuned:
		return "autotuned"
	default:
		return "unknown"
	}
}

// Params configures an index build and its default query behavior.
type Params struct {
	// Algorithm is the index family.
	Algorithm Algorithm

	// Trees is the tree count for forest-based algorithms.
	Trees int

	// Branching is the branch factor for the k-means tree.
	Branching int

	// Iterations caps k-means refinement per node.
	Iterations int

	// LeafMax bounds leaf size for tree algorithms.
	LeafMax int

	// Tables and KeyBits configure LSH.
	Tables  int
	KeyBits int

	// TargetPrecision is the recall target for autotuning, in (0, 1].
	TargetPrecision float32

	// SampleFraction is the dataset share autotuning measures on.
	SampleFraction float32

	// Checks is the query-time traversal budget. ChecksExhaustive forces
	// a full scan regardless of index structure.
	Checks int

	// Cores hints build and query parallelism. 0 means all available.
	Cores int

	// Metric selects the distance variant; MinkowskiP is its order when
	// Metric is MetricMinkowski.
	Metric     distance.Metric
	MinkowskiP float64

	// Seed makes builds deterministic when non-zero.
	Seed int64

	// Compression is applied to the structure block on save.
	Compression persistence.Compression
}

// DefaultParams returns parameters for a k-d forest build with the
// squared Euclidean metric.
func DefaultParams() Params {
	return Params{
		Algorithm:       AlgorithmKDTree,
		Trees:           4,
		Branching:       32,
		Iterations:      11,
		LeafMax:         16,
		Tables:          12,
		KeyBits:         18,
		TargetPrecision: 0.9,
		SampleFraction:  0.1,
		Checks:          index.DefaultChecks,
		Metric:          distance.MetricL2,
		Compression:     persistence.CompressionZSTD,
	}
}

// Validate reports the first invalid field. Values are never clamped.
func (p Params) Validate() error {
	if p.Algorithm > AlgorithmAutotuned {
		return &ErrInvalidParameters{Field: "algorithm", Reason: "unknown family"}
	}
	if p.Trees < 1 {
		return &ErrInvalidParameters{Field: "trees", Reason: "must be >= 1"}
	}
	if p.Branching < 2 {
		return &ErrInvalidParameters{Field: "branching", Reason: "must be >= 2"}
	}
	if p.Iterations < 1 {
		return &ErrInvalidParameters{Field: "iterations", Reason: "must be >= 1"}
	}
	if p.LeafMax < 1 {
		return &ErrInvalidParameters{Field: "leaf_max", Reason: "must be >= 1"}
	}
	if p.Tables < 1 {
		return &ErrInvalidParameters{Field: "tables", Reason: "must be >= 1"}
	}
	if p.KeyBits < 1 || p.KeyBits > 30 {
		return &ErrInvalidParameters{Field: "key_bits", Reason: "must be in [1,30]"}
	}
	if p.Checks < 1 && p.Checks != index.ChecksExhaustive {
		return &ErrInvalidParameters{Field: "checks", Reason: "must be >= 1 or exhaustive"}
	}
	if p.Algorithm == AlgorithmAutotuned && (p.TargetPrecision <= 0 || p.TargetPrecision > 1) {
		return &ErrInvalidParameters{Field: "target_precision", Reason: "must be in (0,1]"}
	}
	if p.Cores < 0 {
		return &ErrInvalidParameters{Field: "cores", Reason: "must be >= 0"}
	}
	return nil
}

// encodeParams writes the params block. Metric and MinkowskiP live in
// the file header, not here.
func encodeParams(w io.Writer, p Params) error {
	bw := persistence.NewWriter(w)
	for _, v := range []uint32{
		uint32(p.Algorithm),
		uint32(p.Trees),
		uint32(p.Branching),
		uint32(p.Iterations),
		uint32(p.LeafMax),
		uint32(p.Tables),
		uint32(p.KeyBits),
		uint32(int32(p.Checks)),
		uint32(p.Cores),
	} {
		if err := bw.WriteUint32(v); err != nil {
			return err
		}
	}
	if err := bw.WriteFloat32(p.TargetPrecision); err != nil {
		return err
	}
	if err := bw.WriteFloat32(p.SampleFraction); err != nil {
		return err
	}
	return bw.WriteUint64(uint64(p.Seed))
}

// paramsBlockSize is the encoded size of the params block in bytes.
const paramsBlockSize = 9*4 + 2*4 + 8

func decodeParams(r io.Reader) (Params, error) {
	br := persistence.NewReader(r)
	var p Params

	fields := []*int{
		nil, // algorithm handled separately
		&p.Trees, &p.Branching, &p.Iterations, &p.LeafMax,
		&p.Tables, &p.KeyBits, nil, &p.Cores,
	}
	for i, f := range fields {
		v, err := br.ReadUint32()
		if err != nil {
			return Params{}, err
		}
		switch i {
		case 0:
			p.Algorithm = Algorithm(v)
		case 7:
			p.Checks = int(int32(v))
		default:
			*f = int(v)
		}
	}

	tp, err := br.ReadFloat32()
	if err != nil {
		return Params{}, err
	}
	sf, err := br.ReadFloat32()
	if err != nil {
		return Params{}, err
	}
	seed, err := br.ReadUint64()
	if err != nil {
		return Params{}, err
	}
	p.TargetPrecision = tp
	p.SampleFraction = sf
	p.Seed = int64(seed)
	return p, nil
}
