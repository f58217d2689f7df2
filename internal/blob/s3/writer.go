package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// multipartThreshold is the payload size above which uploads go through the
// multipart manager. It equals the S3 minimum part size (5 MiB).
const multipartThreshold int64 = 5 * 1024 * 1024

// archiveContentType marks archive objects as newline-delimited JSON.
const archiveContentType = "application/x-ndjson"

// Writer uploads JSONL archive objects to the configured bucket.
type Writer struct {
	client *s3.Client
	bucket string
}

// NewWriter creates a Writer over the client's configured bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

// PutArchive uploads one archive object under key. Small payloads go up in a
// single PutObject; payloads above the multipart threshold are split into
// concurrently uploaded parts by the upload manager.
func (w *Writer) PutArchive(ctx context.Context, key string, data []byte) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(archiveContentType),
	}

	if int64(len(data)) <= multipartThreshold {
		if _, err := w.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("s3blob: put %s: %w", key, err)
		}
		return nil
	}

	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = multipartThreshold
	})
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", key, err)
	}
	return nil
}
