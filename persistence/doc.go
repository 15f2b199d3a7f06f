// Package persistence implements the flanngo on-disk index format.
//
// Every file starts with a fixed 64-byte header carrying a magic tag,
// format version, algorithm family, compression tag, the dataset shape at
// build time, block sizes, and a CRC32 of the blocks. A params block and
// the algorithm-specific structure block follow. The structure block may
// be LZ4- or ZSTD-compressed.
//
// The dataset's raw vectors are deliberately excluded: loading an index
// requires re-supplying a dataset of identical shape.
package persistence
