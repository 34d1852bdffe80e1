// S3-compatible Backend implementation. Works with any S3-compatible
// provider: AWS, Garage, MinIO, DigitalOcean Spaces, Cloudflare R2, etc.
// Path safety is delegated to the provider; integrity checks mirror the
// filesystem backend, with the checksum kept in provider-native object
// metadata and server-side encryption enabled on every write.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/HSPiira/timeline-sub001/internal/config"
)

const checksumMetaKey = "sha256"

// S3Store implements Backend against an S3 bucket.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store creates an S3 backend from config.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	store := &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}
	if err := store.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket exists: %w", err)
	}
	return store, nil
}

// ensureBucketExists checks if the bucket exists and creates it if it doesn't.
func (s *S3Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) Provider() string { return "s3" }

func (s *S3Store) head(ctx context.Context, ref string) (*s3.HeadObjectOutput, error) {
	return s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (s *S3Store) Upload(ctx context.Context, content io.Reader, ref, expectedChecksum, contentType string, custom map[string]string) (*UploadResult, error) {
	head, err := s.head(ctx, ref)
	switch {
	case err == nil:
		existing := head.Metadata[checksumMetaKey]
		if existing != expectedChecksum {
			return nil, &AlreadyExistsError{Ref: ref}
		}
		return &UploadResult{
			Ref:        ref,
			Checksum:   existing,
			Size:       aws.ToInt64(head.ContentLength),
			UploadedAt: aws.ToTime(head.LastModified).UTC(),
		}, nil
	case !isNotFound(err):
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	// Buffer and verify before anything touches the bucket; a mismatch
	// leaves no object behind.
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}
	sum := sha256.Sum256(data)
	computed := hex.EncodeToString(sum[:])
	if computed != expectedChecksum {
		return nil, &ChecksumMismatchError{Ref: ref, Expected: expectedChecksum, Actual: computed}
	}

	meta := map[string]string{checksumMetaKey: computed}
	for k, v := range custom {
		meta["x-"+k] = v
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(ref),
		Body:                 bytes.NewReader(data),
		ContentLength:        aws.Int64(int64(len(data))),
		ContentType:          aws.String(contentType),
		Metadata:             meta,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	return &UploadResult{
		Ref:        ref,
		Checksum:   computed,
		Size:       int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, ref string) (*ChunkReader, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, &OpError{Op: "download", Ref: ref, Err: err}
	}
	return NewChunkReader(ctx, out.Body), nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) (bool, error) {
	if _, err := s.head(ctx, ref); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &OpError{Op: "delete", Ref: ref, Err: err}
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return false, &OpError{Op: "delete", Ref: ref, Err: err}
	}
	return true, nil
}

func (s *S3Store) Exists(ctx context.Context, ref string) (bool, error) {
	_, err := s.head(ctx, ref)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &OpError{Op: "metadata", Ref: ref, Err: err}
	}
	return true, nil
}

func (s *S3Store) GetMetadata(ctx context.Context, ref string) (*ObjectMetadata, error) {
	head, err := s.head(ctx, ref)
	if err != nil {
		if isNotFound(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, &OpError{Op: "metadata", Ref: ref, Err: err}
	}

	custom := make(map[string]string)
	for k, v := range head.Metadata {
		if len(k) > 2 && k[:2] == "x-" {
			custom[k[2:]] = v
		}
	}
	if len(custom) == 0 {
		custom = nil
	}

	return &ObjectMetadata{
		Ref:         ref,
		Checksum:    head.Metadata[checksumMetaKey],
		Size:        aws.ToInt64(head.ContentLength),
		ContentType: aws.ToString(head.ContentType),
		UploadedAt:  aws.ToTime(head.LastModified).UTC(),
		Custom:      custom,
	}, nil
}

func (s *S3Store) GenerateDownloadURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	ok, err := s.Exists(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{Ref: ref}
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", &OpError{Op: "download", Ref: ref, Err: err}
	}
	return req.URL, nil
}
