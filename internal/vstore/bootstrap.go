package vstore

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// BootstrapOptions tunes resource creation. Zero capacity units select
// on-demand billing for the table.
type BootstrapOptions struct {
	ReadCapacityUnits  int64
	WriteCapacityUnits int64
}

const tableActivePollInterval = 2 * time.Second

// Bootstrap creates the S3 bucket and DynamoDB table backing the store.
// Both creations are idempotent: resources that already exist (and are
// owned by the caller) are left untouched. Blocks until the table is ACTIVE
// or ctx is done.
func (r *Repository) Bootstrap(ctx context.Context, opts BootstrapOptions) error {
	if err := r.createBucket(ctx); err != nil {
		return err
	}
	if err := r.createTable(ctx, opts); err != nil {
		return err
	}
	return r.waitTableActive(ctx)
}

func (r *Repository) createBucket(ctx context.Context) error {
	in := &s3.CreateBucketInput{
		Bucket: aws.String(r.opts.Bucket),
	}
	// us-east-1 rejects an explicit location constraint
	if r.opts.Region != "" && r.opts.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(r.opts.Region),
		}
	}

	_, err := r.s3.CreateBucket(ctx, in)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		var exists *s3types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			r.logger.Debug(ctx, "bucket already exists", "bucket", r.opts.Bucket)
			return nil
		}
		return xerrors.Wrapf(err, "create bucket %s", r.opts.Bucket)
	}

	r.logger.Info(ctx, "bucket created", "bucket", r.opts.Bucket, "region", r.opts.Region)
	return nil
}

func (r *Repository) createTable(ctx context.Context, opts BootstrapOptions) error {
	in := &dynamodb.CreateTableInput{
		TableName: aws.String(r.opts.TableName),
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: ddbtypes.KeyTypeRange},
		},
	}
	if opts.ReadCapacityUnits > 0 || opts.WriteCapacityUnits > 0 {
		in.BillingMode = ddbtypes.BillingModeProvisioned
		in.ProvisionedThroughput = &ddbtypes.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(maxInt64(opts.ReadCapacityUnits, 1)),
			WriteCapacityUnits: aws.Int64(maxInt64(opts.WriteCapacityUnits, 1)),
		}
	} else {
		in.BillingMode = ddbtypes.BillingModePayPerRequest
	}

	_, err := r.ddb.CreateTable(ctx, in)
	if err != nil {
		var inUse *ddbtypes.ResourceInUseException
		if errors.As(err, &inUse) {
			r.logger.Debug(ctx, "table already exists", "table", r.opts.TableName)
			return nil
		}
		return xerrors.Wrapf(err, "create table %s", r.opts.TableName)
	}

	r.logger.Info(ctx, "table created", "table", r.opts.TableName, "billing_mode", string(in.BillingMode))
	return nil
}

func (r *Repository) waitTableActive(ctx context.Context) error {
	ticker := time.NewTicker(tableActivePollInterval)
	defer ticker.Stop()

	for {
		out, err := r.ddb.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(r.opts.TableName),
		})
		if err != nil {
			return xerrors.Wrapf(err, "describe table %s", r.opts.TableName)
		}
		if out.Table != nil && out.Table.TableStatus == ddbtypes.TableStatusActive {
			return nil
		}

		select {
		case <-ctx.Done():
			return xerrors.Wrapf(ctx.Err(), "waiting for table %s to become active", r.opts.TableName)
		case <-ticker.C:
		}
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
