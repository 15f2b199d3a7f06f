// Package s3 provides an S3-backed blobstore.Store.
//
// Uploads go through the AWS transfer manager so large index files are
// written as parallel multipart uploads. Listing uses the paginated
// ListObjectsV2 API.
package s3
