package zarr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const S3StoreType = "S3Store"

// s3API is the slice of the S3 client surface the store needs. Tests swap in
// an in-memory fake.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps one zarr hierarchy under a key prefix in a single bucket
// (AWS S3 or MinIO). Keys map to object keys directly.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// S3Config holds explicit construction parameters. Credentials fall back to
// the default AWS chain when unset.
type S3Config struct {
	Region    string
	Bucket    string
	Prefix    string
	Endpoint  string // optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: normalizePrefix(cfg.Prefix)}, nil
}

// OpenS3URL constructs a store at an "s3://bucket/prefix" location, taking
// region and endpoint settings from the process environment:
//
//	IMAGE2ZARR_S3_REGION=<region> (default us-east-1)
//	IMAGE2ZARR_S3_ENDPOINT=<url>  (optional, for MinIO)
//	IMAGE2ZARR_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func OpenS3URL(ctx context.Context, raw string) (*S3Store, error) {
	trimmed := strings.TrimPrefix(raw, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	cfg := S3Config{
		Bucket:    parts[0],
		Region:    os.Getenv("IMAGE2ZARR_S3_REGION"),
		Endpoint:  os.Getenv("IMAGE2ZARR_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("IMAGE2ZARR_S3_PATH_STYLE"), "true"),
	}
	if len(parts) == 2 {
		cfg.Prefix = parts[1]
	}
	return NewS3Store(ctx, cfg)
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return prefix
}

func (s *S3Store) Type() string { return S3StoreType }

func (s *S3Store) key(key string) string { return s.prefix + key }

func (s *S3Store) Get(key string) (io.ReadCloser, error) {
	k := s.key(key)
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{Bucket: &s.bucket, Key: &k})
	if err != nil {
		// only a missing object maps to the sentinel; transient transport or
		// auth failures must stay distinguishable
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotfound, key)
		}
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(key string, val io.Reader) error {
	k := s.key(key)
	_, err := s.client.PutObject(context.Background(), &s3.PutObjectInput{Bucket: &s.bucket, Key: &k, Body: val})
	if err != nil {
		return err
	}
	if c, ok := val.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *S3Store) Delete(key string) error {
	k := s.key(key)
	_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &k})
	return err
}

func (s *S3Store) List(prefix string) ([]string, error) {
	var keys []string
	var token *string
	full := s.key(prefix)
	for {
		out, err := s.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket: &s.bucket, Prefix: &full, ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}
