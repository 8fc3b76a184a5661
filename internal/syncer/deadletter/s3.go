package deadletter

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/indexflow-go/pkg/logger"
)

// S3Archiver uploads a gzipped copy of every dead letter for long-term audit.
// Archival is best effort: an upload failure is logged, never propagated, so
// the primary sink chain is unaffected.
type S3Archiver struct {
	client *s3.S3
	bucket string
	logger logger.Logger
}

func NewS3Archiver(client *s3.S3, bucket string, log logger.Logger) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, logger: log}
}

func (a *S3Archiver) OnDeadLetter(ctx context.Context, letter Letter) {
	data, err := json.Marshal(letter)
	if err != nil {
		a.logger.Error("Failed to encode dead letter for archival", "error", err)
		return
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		a.logger.Error("Failed to compress dead letter", "error", err)
		return
	}
	if err := gz.Close(); err != nil {
		a.logger.Error("Failed to compress dead letter", "error", err)
		return
	}

	key := fmt.Sprintf("deadletters/%s/%s/%s-%s.json.gz",
		letter.Task.Identity.Index,
		time.Now().UTC().Format("2006-01-02"),
		letter.Task.Identity.RecordID,
		uuid.New().String(),
	)

	_, err = a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		a.logger.Error("Failed to archive dead letter",
			"error", err, "bucket", a.bucket, "key", key)
	}
}
