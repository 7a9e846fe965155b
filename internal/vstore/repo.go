// Package vstore implements the versioned artifact repository: binary
// payloads in S3 under {prefix}/{name}/{version}{suffix}, one metadata item
// per version in a DynamoDB table keyed by (name, version).
package vstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// S3API is the subset of the S3 client the repository uses. Extracted as an
// interface to enable unit testing without live AWS credentials.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// DynamoDBAPI is the subset of the DynamoDB client the repository uses.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type Options struct {
	Logger log.Logger

	// AWS region the store lives in (bucket location constraint at bootstrap)
	Region string

	// S3 location for payloads: s3://{Bucket}/{Prefix}/{name}/{version}{Suffix}
	Bucket string
	Prefix string

	// DynamoDB table holding one item per (name, version)
	TableName string

	// Suffix appended to every object key (".py", ".zip")
	Suffix string

	S3       S3API
	DynamoDB DynamoDBAPI
}

// Repository stores versioned artifacts in S3 with metadata in DynamoDB.
type Repository struct {
	opts   Options
	s3     S3API
	ddb    DynamoDBAPI
	logger log.Logger
}

// New validates options and returns a Repository. The S3 and DynamoDB
// clients are required; callers build them from a shared aws.Config.
func New(opts Options) (*Repository, error) {
	if opts.Bucket == "" {
		return nil, xerrors.New("vstore: Bucket is required")
	}
	if opts.TableName == "" {
		return nil, xerrors.New("vstore: TableName is required")
	}
	if opts.S3 == nil {
		return nil, xerrors.New("vstore: S3 client is required")
	}
	if opts.DynamoDB == nil {
		return nil, xerrors.New("vstore: DynamoDB client is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	opts.Prefix = strings.Trim(opts.Prefix, "/")

	return &Repository{
		opts:   opts,
		s3:     opts.S3,
		ddb:    opts.DynamoDB,
		logger: opts.Logger,
	}, nil
}

// Bucket returns the configured S3 bucket name.
func (r *Repository) Bucket() string { return r.opts.Bucket }

// TableName returns the configured DynamoDB table name.
func (r *Repository) TableName() string { return r.opts.TableName }

// artifactKey returns the object key for one version of an artifact.
func (r *Repository) artifactKey(name, version string) string {
	return r.artifactKeyWithSuffix(name, version, r.opts.Suffix)
}

func (r *Repository) artifactKeyWithSuffix(name, version, suffix string) string {
	key := fmt.Sprintf("%s/%s%s", name, version, suffix)
	if r.opts.Prefix != "" {
		key = r.opts.Prefix + "/" + key
	}
	return key
}

// ArtifactS3URI returns the s3:// URI for one version of an artifact.
func (r *Repository) ArtifactS3URI(name, version string) string {
	return r.artifactS3URIWithSuffix(name, version, r.opts.Suffix)
}

func (r *Repository) artifactS3URIWithSuffix(name, version, suffix string) string {
	return fmt.Sprintf("s3://%s/%s", r.opts.Bucket, r.artifactKeyWithSuffix(name, version, suffix))
}

// validateName rejects names that would break the key layout.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return xerrors.New("artifact name is required")
	}
	if strings.ContainsAny(name, "/\\") {
		return xerrors.Newf("artifact name %q must not contain path separators", name)
	}
	return nil
}
