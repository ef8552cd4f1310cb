package domain

import (
	"fmt"
	"time"
)

// UploadStatus is the state of one UploadRecord.
type UploadStatus string

const (
	StatusInProgress          UploadStatus = "in_progress"
	StatusSchedulerInProgress UploadStatus = "scheduler_in_progress"
	StatusFinished            UploadStatus = "finished"
)

// Collection distinguishes client->origin ingest from origin->edge
// replication in the composite cache key.
type Collection string

const (
	CollectionAPI Collection = "api"
	CollectionCDN Collection = "cdn"
)

// UploadKey builds the composite cache key "{collection}^{object}^{endpoint}".
func UploadKey(collection Collection, objectName, endpoint string) string {
	return fmt.Sprintf("%s^%s^%s", collection, objectName, endpoint)
}

// UploadRecord is the cached state of one in-progress or completed
// multipart upload, keyed by (collection, object, endpoint).
type UploadRecord struct {
	MPUID        string
	PartNumber   int
	ETag         string
	Uploaded     int64
	Size         int64
	LastModified time.Time
	Status       UploadStatus
}

// PartDescriptor is one uploaded part in an S3 multipart upload.
type PartDescriptor struct {
	PartNumber int
	ETag       string
	Size       int64
}
