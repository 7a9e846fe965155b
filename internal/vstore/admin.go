package vstore

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// DeleteArtifactVersion removes one version's payload and metadata item.
func (r *Repository) DeleteArtifactVersion(ctx context.Context, name, version string) error {
	if err := validateName(name); err != nil {
		return err
	}

	key := r.artifactKey(name, version)
	if _, err := r.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	}); err != nil {
		return xerrors.Wrapf(err, "delete s3://%s/%s", r.opts.Bucket, key)
	}

	if _, err := r.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.opts.TableName),
		Key:       itemKey(name, version),
	}); err != nil {
		return xerrors.Wrapf(err, "delete item %s/%s from table %s", name, version, r.opts.TableName)
	}

	r.logger.Info(ctx, "artifact version deleted",
		"artifact", name,
		"version", version,
	)
	return nil
}

// PurgeArtifact removes every version of an artifact, LATEST included.
func (r *Repository) PurgeArtifact(ctx context.Context, name string) error {
	versions, err := r.ListArtifactVersions(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := r.DeleteArtifactVersion(ctx, name, v.Version); err != nil {
			return err
		}
	}
	r.logger.Info(ctx, "artifact purged",
		"artifact", name,
		"versions_removed", len(versions),
	)
	return nil
}
