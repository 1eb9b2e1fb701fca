package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/yourusername/furlong/internal/models"
)

// ObjectStore is the subset of the S3 client the archive uses
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Archive stores msgpack-encoded artifacts under
// <prefix>/<segment>/<version>-<id>.msgpack
type S3Archive struct {
	client ObjectStore
	bucket string
	prefix string
}

// NewS3Archive creates an archive writing to bucket
func NewS3Archive(client ObjectStore, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for an artifact
func (a *S3Archive) Key(segment models.Segment, version int64, id string) string {
	return path.Join(a.prefix, string(segment), fmt.Sprintf("%06d-%s.msgpack", version, id))
}

// Put uploads an artifact
func (a *S3Archive) Put(ctx context.Context, artifact *models.ModelArtifact) error {
	body, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(artifact.Segment, artifact.Version, artifact.ID.String())),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/msgpack"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload artifact: %w", err)
	}
	return nil
}

// Get downloads an archived artifact
func (a *S3Archive) Get(ctx context.Context, segment models.Segment, version int64, id string) (*models.ModelArtifact, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(segment, version, id)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact body: %w", err)
	}
	return DecodeArtifact(data)
}

// EncodeArtifact serializes an artifact with msgpack
func EncodeArtifact(artifact *models.ModelArtifact) ([]byte, error) {
	data, err := msgpack.Marshal(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to encode artifact: %w", err)
	}
	return data, nil
}

// DecodeArtifact parses a msgpack-encoded artifact
func DecodeArtifact(data []byte) (*models.ModelArtifact, error) {
	var artifact models.ModelArtifact
	if err := msgpack.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	return &artifact, nil
}
