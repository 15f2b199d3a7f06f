package kmeanstree

import (
	"fmt"
	"io"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/persistence"
)

func init() {
	index.RegisterBinaryDecoder(index.KindKMeansTree, decodeBinary)
}

const (
	nodeInternal = uint32(0)
	nodeLeaf     = uint32(1)
)

// EncodeBinary writes the tree in preorder. Every node carries its
// centroid; internal nodes carry a child count, leaves their point IDs.
// Vectors are not written.
func (t *KMeansTree) EncodeBinary(w io.Writer) error {
	if t.root == nil {
		return index.ErrNotBuilt
	}
	bw := persistence.NewWriter(w)

	if err := bw.WriteUint32(uint32(t.opts.Branching)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(t.opts.Iterations)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(t.opts.LeafMax)); err != nil {
		return err
	}
	return encodeNode(bw, t.root)
}

func encodeNode(bw *persistence.Writer, n *knode) error {
	marker := nodeInternal
	if n.leaf() {
		marker = nodeLeaf
	}
	if err := bw.WriteUint32(marker); err != nil {
		return err
	}
	if err := bw.WriteFloat32Slice(n.centroid); err != nil {
		return err
	}
	if n.leaf() {
		if err := bw.WriteUint32(uint32(len(n.points))); err != nil {
			return err
		}
		return bw.WriteUint32Slice(n.points)
	}
	if err := bw.WriteUint32(uint32(len(n.children))); err != nil {
		return err
	}
	for _, child := range n.children {
		if err := encodeNode(bw, child); err != nil {
			return err
		}
	}
	return nil
}

func decodeBinary(r io.Reader, ds *dataset.Dataset, mc index.MetricConfig) (index.Algorithm, error) {
	br := persistence.NewReader(r)

	branching, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	iterations, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	leafMax, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}

	t, err := New(mc, func(o *Options) {
		o.Branching = int(branching)
		o.Iterations = int(iterations)
		o.LeafMax = int(leafMax)
	})
	if err != nil {
		return nil, err
	}
	t.ds = ds

	root, err := decodeNode(br, uint32(ds.Rows()), ds.Dim(), uint32(branching))
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func decodeNode(br *persistence.Reader, rows uint32, dim int, branching uint32) (*knode, error) {
	marker, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	if marker != nodeLeaf && marker != nodeInternal {
		return nil, fmt.Errorf("kmeanstree: invalid node marker %d", marker)
	}

	centroid, err := br.ReadFloat32Slice(dim)
	if err != nil {
		return nil, err
	}

	if marker == nodeLeaf {
		count, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		if count > rows {
			return nil, fmt.Errorf("kmeanstree: leaf with %d points exceeds dataset rows %d", count, rows)
		}
		points, err := br.ReadUint32Slice(int(count))
		if err != nil {
			return nil, err
		}
		for _, id := range points {
			if id >= rows {
				return nil, fmt.Errorf("kmeanstree: point id %d out of range", id)
			}
		}
		if points == nil {
			points = []uint32{}
		}
		return &knode{centroid: centroid, points: points}, nil
	}

	count, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	if count < 1 || count > branching {
		return nil, fmt.Errorf("kmeanstree: child count %d out of range", count)
	}
	children := make([]*knode, count)
	for i := range children {
		child, err := decodeNode(br, rows, dim, branching)
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &knode{centroid: centroid, children: children}, nil
}
