package vstore

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/glue-artifact-store/internal/hashutil"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// metadataHashKey is the S3 object metadata key carrying the payload digest.
const metadataHashKey = "artifact-sha256"

// PutArtifact writes content to the artifact's LATEST location and records
// the LATEST metadata item. When the current LATEST already holds the same
// content (by sha256) the upload is skipped and the existing record is
// returned, so repeated deploys of unchanged artifacts are cheap no-ops.
func (r *Repository) PutArtifact(ctx context.Context, name string, content []byte, contentType string, metadata map[string]string) (Artifact, error) {
	if err := validateName(name); err != nil {
		return Artifact{}, err
	}

	sum := hashutil.SHA256Hex(content)

	existing, err := r.GetArtifactVersion(ctx, name, LatestVersion)
	switch {
	case err == nil:
		if hashutil.HashEqual(existing.SHA256, sum) {
			r.logger.Info(ctx, "artifact content unchanged, skipping upload",
				"artifact", name,
				"sha256", sum,
			)
			return existing, nil
		}
	case !isNotFound(err):
		return Artifact{}, err
	}

	key := r.artifactKey(name, LatestVersion)
	objMeta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		objMeta[k] = v
	}
	objMeta[metadataHashKey] = sum

	_, err = r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		Metadata:    objMeta,
	})
	if err != nil {
		return Artifact{}, xerrors.Wrapf(err, "put s3://%s/%s", r.opts.Bucket, key)
	}

	art := Artifact{
		Name:        name,
		Version:     LatestVersion,
		UpdateAt:    time.Now().UTC(),
		SHA256:      sum,
		Size:        int64(len(content)),
		ContentType: contentType,
		S3URI:       r.ArtifactS3URI(name, LatestVersion),
		Metadata:    metadata,
	}

	av, err := marshalItem(r.itemFromArtifact(art))
	if err != nil {
		return Artifact{}, err
	}
	_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.opts.TableName),
		Item:      av,
	})
	if err != nil {
		return Artifact{}, xerrors.Wrapf(err, "put item %s/%s to table %s", name, LatestVersion, r.opts.TableName)
	}

	r.logger.Info(ctx, "artifact stored",
		"artifact", name,
		"version", LatestVersion,
		"sha256", sum,
		"size", art.Size,
		"s3_uri", art.S3URI,
	)
	return art, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrArtifactNotFound) || errors.Is(err, ErrVersionNotFound)
}
