package backup

import "context"

// Config controls post-batch snapshots of the result store. An empty Dir
// disables snapshots.
type Config struct {
	Dir      string
	KeepLast int
	S3       S3Config // S3.BucketURL empty = local copies only
}

// Source is the database a Keeper copies.
type Source interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Uploader ships a finished snapshot file off the machine.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
