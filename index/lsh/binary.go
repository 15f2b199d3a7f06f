package lsh

import (
	"fmt"
	"io"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/flanngo/dataset"
	"github.com/hupe1980/flanngo/index"
	"github.com/hupe1980/flanngo/persistence"
)

func init() {
	index.RegisterBinaryDecoder(index.KindLSH, decodeBinary)
}

// EncodeBinary writes the table count and key width, then per table the
// hyperplane block followed by its buckets. Bucket bitmaps use roaring's
// portable serialization; keys are written in ascending order so the
// encoding is deterministic.
func (l *LSH) EncodeBinary(w io.Writer) error {
	if l.tables == nil {
		return index.ErrNotBuilt
	}
	bw := persistence.NewWriter(w)

	if err := bw.WriteUint32(uint32(l.opts.Tables)); err != nil {
		return err
	}
	if err := bw.WriteUint32(uint32(l.opts.KeyBits)); err != nil {
		return err
	}
	for i := range l.tables {
		t := &l.tables[i]
		if err := bw.WriteFloat32Slice(t.planes); err != nil {
			return err
		}
		if err := bw.WriteUint32(uint32(len(t.buckets))); err != nil {
			return err
		}
		keys := make([]uint64, 0, len(t.buckets))
		for key := range t.buckets {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
		for _, key := range keys {
			if err := bw.WriteUint64(key); err != nil {
				return err
			}
			data, err := t.buckets[key].MarshalBinary()
			if err != nil {
				return err
			}
			if err := bw.WriteUint32(uint32(len(data))); err != nil {
				return err
			}
			if err := bw.WriteBytes(data); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeBinary(r io.Reader, ds *dataset.Dataset, mc index.MetricConfig) (index.Algorithm, error) {
	br := persistence.NewReader(r)

	tables, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	keyBits, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}

	l, err := New(mc, func(o *Options) {
		o.Tables = int(tables)
		o.KeyBits = int(keyBits)
	})
	if err != nil {
		return nil, err
	}
	l.ds = ds

	rows := uint64(ds.Rows())
	l.tables = make([]table, tables)
	for i := range l.tables {
		planes, err := br.ReadFloat32Slice(int(keyBits) * ds.Dim())
		if err != nil {
			return nil, err
		}
		count, err := br.ReadUint32()
		if err != nil {
			return nil, err
		}
		buckets := make(map[uint64]*roaring.Bitmap, count)
		for j := uint32(0); j < count; j++ {
			key, err := br.ReadUint64()
			if err != nil {
				return nil, err
			}
			size, err := br.ReadUint32()
			if err != nil {
				return nil, err
			}
			data, err := br.ReadBytes(int(size))
			if err != nil {
				return nil, err
			}
			bm := roaring.New()
			if err := bm.UnmarshalBinary(data); err != nil {
				return nil, err
			}
			if m := bm.Maximum(); !bm.IsEmpty() && uint64(m) >= rows {
				return nil, fmt.Errorf("lsh: bucket point id %d out of range", m)
			}
			buckets[key] = bm
		}
		l.tables[i] = table{planes: planes, buckets: buckets}
	}
	return l, nil
}
