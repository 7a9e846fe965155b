package vstore

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/glue-artifact-store/internal/hashutil"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// MaxPayloadSize caps a single artifact download. Glue library zips are
// tens of megabytes at most; anything bigger is a configuration mistake.
const MaxPayloadSize int64 = 256 * 1024 * 1024

// GetArtifactVersion returns the metadata record for one version without
// touching the payload. Uses a consistent read so a Put followed by a
// Publish observes its own write.
func (r *Repository) GetArtifactVersion(ctx context.Context, name, version string) (Artifact, error) {
	if err := validateName(name); err != nil {
		return Artifact{}, err
	}

	out, err := r.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.opts.TableName),
		Key:            itemKey(name, version),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Artifact{}, xerrors.Wrapf(err, "get item %s/%s from table %s", name, version, r.opts.TableName)
	}
	if len(out.Item) == 0 {
		if version == LatestVersion {
			return Artifact{}, xerrors.Wrapf(ErrArtifactNotFound, "%s", name)
		}
		return Artifact{}, xerrors.Wrapf(ErrVersionNotFound, "%s/%s", name, version)
	}

	it, err := unmarshalItem(out.Item)
	if err != nil {
		return Artifact{}, err
	}
	return r.artifactFromItem(it), nil
}

// GetArtifact returns the metadata record and the payload bytes, verifying
// the payload against the recorded sha256.
func (r *Repository) GetArtifact(ctx context.Context, name, version string) (Artifact, []byte, error) {
	art, err := r.GetArtifactVersion(ctx, name, version)
	if err != nil {
		return Artifact{}, nil, err
	}

	key := r.artifactKey(name, version)
	out, err := r.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Artifact{}, nil, xerrors.Wrapf(err, "get s3://%s/%s", r.opts.Bucket, key)
	}
	defer out.Body.Close()

	lr := io.LimitReader(out.Body, MaxPayloadSize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return Artifact{}, nil, xerrors.Wrapf(err, "read s3://%s/%s", r.opts.Bucket, key)
	}
	if int64(len(data)) > MaxPayloadSize {
		return Artifact{}, nil, xerrors.Newf("s3://%s/%s exceeds size limit (max %d bytes)",
			r.opts.Bucket, key, MaxPayloadSize)
	}

	if art.SHA256 != "" && !hashutil.HashEqual(hashutil.SHA256Hex(data), art.SHA256) {
		return Artifact{}, nil, xerrors.Newf("payload hash mismatch for %s/%s: expected %s",
			name, version, art.SHA256)
	}

	return art, data, nil
}

// ListArtifactVersions returns all versions of an artifact, newest first
// (LATEST sorts after every numbered version and appears first).
func (r *Repository) ListArtifactVersions(ctx context.Context, name string) ([]Artifact, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	var arts []Artifact
	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.opts.TableName),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": &ddbtypes.AttributeValueMemberS{Value: name},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, xerrors.Wrapf(err, "query versions of %s from table %s", name, r.opts.TableName)
		}
		for _, av := range out.Items {
			it, err := unmarshalItem(av)
			if err != nil {
				return nil, err
			}
			arts = append(arts, r.artifactFromItem(it))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return arts, nil
}

// ListArtifactNames returns the distinct artifact names in the table.
func (r *Repository) ListArtifactNames(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	var startKey map[string]ddbtypes.AttributeValue
	for {
		out, err := r.ddb.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(r.opts.TableName),
			ProjectionExpression: aws.String("pk"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return nil, xerrors.Wrapf(err, "scan table %s", r.opts.TableName)
		}
		for _, av := range out.Items {
			it, err := unmarshalItem(av)
			if err != nil {
				return nil, err
			}
			if !seen[it.PK] {
				seen[it.PK] = true
				names = append(names, it.PK)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return names, nil
}
