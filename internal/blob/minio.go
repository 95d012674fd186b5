package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/awsl-dev/vidstream/internal/apperr"
)

// MinioStore keeps chunk bytes in an S3-compatible bucket. Object keys
// are generated here and returned as opaque file ids; callers must not
// parse them.
type MinioStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStore connects to the endpoint and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucketName string, useSSL bool, logger *zap.Logger) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		logger.Info("creating bucket", zap.String("bucket", bucketName))
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucketName: bucketName}, nil
}

// Put stores one chunk under a generated object key and returns the key
// as the chunk's opaque id.
func (ms *MinioStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	objectKey := "chunks/" + uuid.New().String()

	ctx, span := tracer.Start(ctx, "blob.put",
		trace.WithAttributes(
			attribute.String("chunk_name", name),
			attribute.String("object_key", objectKey),
			attribute.Int("size_bytes", len(data)),
		),
	)
	defer span.End()

	_, err := ms.client.PutObject(ctx, ms.bucketName, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		span.RecordError(err)
		return "", &apperr.UploadError{Name: name, Err: err}
	}
	return objectKey, nil
}

// Get fetches the exact bytes previously stored under fileID.
func (ms *MinioStore) Get(ctx context.Context, fileID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "blob.get",
		trace.WithAttributes(attribute.String("file_id", fileID)),
	)
	defer span.End()

	object, err := ms.client.GetObject(ctx, ms.bucketName, fileID, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, &apperr.RetrievalError{FileID: fileID, Err: err}
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		span.RecordError(err)
		resp := minio.ToErrorResponse(err)
		return nil, &apperr.RetrievalError{
			FileID:   fileID,
			NotFound: resp.Code == "NoSuchKey",
			Err:      err,
		}
	}
	span.SetAttributes(attribute.Int("size_bytes", len(data)))
	return data, nil
}
