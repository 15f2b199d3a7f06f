package composite

import (
	"fmt"
	"io"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/index/kdtree"
	"github.com/hupe1980/flanngo/index/kmeanstree"
)

func init() {
	index.RegisterBinaryDecoder(index.KindComposite, decodeBinary)
}

// EncodeBinary writes the two sub-structures back to back. Each
// sub-encoding is self-delimiting, so no length prefix is needed.
func (c *Composite) EncodeBinary(w io.Writer) error {
	if c.ds == nil {
		return index.ErrNotBuilt
	}
	if err := c.kd.EncodeBinary(w); err != nil {
		return err
	}
	return c.km.EncodeBinary(w)
}

func decodeBinary(r io.Reader, ds *dataset.Dataset, mc index.MetricConfig) (index.Algorithm, error) {
	kdAlg, err := index.DecodeBinary(index.KindKDTree, r, ds, mc)
	if err != nil {
		return nil, err
	}
	kd, ok := kdAlg.(*kdtree.KDTree)
	if !ok {
		return nil, fmt.Errorf("composite: unexpected sub-index type %T", kdAlg)
	}

	kmAlg, err := index.DecodeBinary(index.KindKMeansTree, r, ds, mc)
	if err != nil {
		return nil, err
	}
	km, ok := kmAlg.(*kmeanstree.KMeansTree)
	if !ok {
		return nil, fmt.Errorf("composite: unexpected sub-index type %T", kmAlg)
	}

	fn, err := mc.Func()
	if err != nil {
		return nil, err
	}
	return &Composite{opts: DefaultOptions, mc: mc, fn: fn, ds: ds, kd: kd, km: km}, nil
}
