package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API defines the subset of the S3 client used by S3Archive.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Archive stores messages in an S3-compatible object store.
type S3Archive struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Archive creates an S3Archive with the given client, bucket and key prefix.
func NewS3Archive(client s3API, bucket, prefix string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, prefix: prefix}
}

// NewS3ArchiveFromConfig builds a real AWS S3 client from cfg. Custom
// endpoints (e.g. MinIO) use path-style addressing.
func NewS3ArchiveFromConfig(cfg Config) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, errors.New("archive: s3 bucket is required")
	}

	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.S3Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), optFns...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Archive(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

func (a *S3Archive) key(campaignID, recipientID string) (string, error) {
	k, err := Key(campaignID, recipientID)
	if err != nil {
		return "", err
	}
	return a.prefix + k, nil
}

// Put uploads a rendered message.
func (a *S3Archive) Put(ctx context.Context, campaignID, recipientID string, data []byte) error {
	k, err := a.key(campaignID, recipientID)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &k,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("message/rfc822"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put: %w", err)
	}
	return nil
}

// Get downloads a rendered message.
// Returns ErrNotFound if the object does not exist.
func (a *S3Archive) Get(ctx context.Context, campaignID, recipientID string) ([]byte, error) {
	k, err := a.key(campaignID, recipientID)
	if err != nil {
		return nil, err
	}
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &k,
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: s3 get: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: s3 read body: %w", err)
	}
	return data, nil
}

// Delete removes a rendered message. S3 DeleteObject is already idempotent.
func (a *S3Archive) Delete(ctx context.Context, campaignID, recipientID string) error {
	k, err := a.key(campaignID, recipientID)
	if err != nil {
		return err
	}
	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &a.bucket,
		Key:    &k,
	})
	if err != nil {
		return fmt.Errorf("archive: s3 delete: %w", err)
	}
	return nil
}
