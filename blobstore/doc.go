// Package blobstore abstracts where serialized indexes live.
//
// A Store holds named immutable blobs. The local implementation maps
// files read-only for cheap loads; the s3 and minio subpackages talk to
// object storage so indexes can be shared between machines. MemoryStore
// backs tests.
package blobstore
