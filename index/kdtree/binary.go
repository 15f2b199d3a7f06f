package kdtree

import (
	"fmt"
	"io"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/persistence"
)

func init() {
	index.RegisterBinaryDecoder(index.KindKDTree, decodeBinary)
}

// Node markers in the serialized preorder stream.
const (
	nodeInternal = uint32(0)
	nodeLeaf     = uint32(1)
)

// EncodeBinary writes the forest topology: option fields needed to
// reconstruct behavior, then each tree in preorder with split planes and
// leaf point IDs. Vectors are not written.
func (t *KDTree) EncodeBinary(w io.Writer) error {
	if t.trees == nil {
		return index.ErrNotBuilt
	}
	bw := persistence.NewWriter(w)

	if err := bw.WriteUint32(uint32(t.opts.Trees)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(t.opts.LeafMax)); err != nil {
		return err
	}
	for _, root := range t.trees {
		if err := encodeNode(bw, root); err != nil {
			return err
		}
	}
	return nil
}

func encodeNode(bw *persistence.Writer, n *node) error {
	if n.leaf() {
		if err := bw.WriteUint32(nodeLeaf); err != nil {
			return err
		}
		if err := bw.WriteUint32(uint32(len(n.points))); err != nil {
			return err
		}
		return bw.WriteUint32Slice(n.points)
	}
	if err := bw.WriteUint32(nodeInternal); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(n.splitDim)); err != nil {
		return err
	}
	if err := bw.WriteFloat32(n.splitVal); err != nil {
		return err
	}
	if err := encodeNode(bw, n.left); err != nil {
		return err
	}
	return encodeNode(bw, n.right)
}

func decodeBinary(r io.Reader, ds *dataset.Dataset, mc index.MetricConfig) (index.Algorithm, error) {
	br := persistence.NewReader(r)

	trees, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	leafMax, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}

	t, err := New(mc, func(o *Options) {
		o.Trees = int(trees)
		o.LeafMax = int(leafMax)
	})
	if err != nil {
		return nil, err
	}
	t.ds = ds

	t.trees = make([]*node, trees)
	for i := range t.trees {
		root, err := decodeNode(br, uint32(ds.Rows()), uint32(ds.Dim()))
		if err != nil {
			return nil, err
		}
		t.trees[i] = root
	}
	return t, nil
}

func decodeNode(br *persistence.Reader, rows, dim uint32) (*node, error) {
	marker, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	switch marker {
	case nodeLeaf:
		count, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		if count > rows {
			return nil, fmt.Errorf("kdtree: leaf with %d points exceeds dataset rows %d", count, rows)
		}
		points, err := br.ReadUint32Slice(int(count))
		if err != nil {
			return nil, err
		}
		for _, id := range points {
			if id >= rows {
				return nil, fmt.Errorf("kdtree: point id %d out of range", id)
			}
		}
		if points == nil {
			points = []uint32{}
		}
		return &node{points: points}, nil
	case nodeInternal:
		splitDim, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		if splitDim >= dim {
			return nil, fmt.Errorf("kdtree: split dimension %d out of range", splitDim)
		}
		splitVal, err := br.ReadFloat32()
		if err != nil {
			return nil, err
		}
		left, err := decodeNode(br, rows, dim)
		if err != nil {
			return nil, err
		}
		right, err := decodeNode(br, rows, dim)
		if err != nil {
			return nil, err
		}
		return &node{splitDim: int32(splitDim), splitVal: splitVal, left: left, right: right}, nil
	default:
		return nil, fmt.Errorf("kdtree: invalid node marker %d", marker)
	}
}
