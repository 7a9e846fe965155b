package vstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// maxPublishAttempts bounds retries when concurrent publishers race for
// the same version number.
const maxPublishAttempts = 5

// PublishArtifactVersion freezes the current LATEST content as the next
// numbered, immutable version and returns its record.
//
// The conditional PutItem is the claim: attribute_not_exists(sk) guarantees
// two concurrent publishers never commit the same number. The S3 copy runs
// after the claim so a numbered object key is written exactly once; if the
// copy fails the claim item is deleted as compensation.
func (r *Repository) PublishArtifactVersion(ctx context.Context, name string, extraMetadata map[string]string) (Artifact, error) {
	latest, err := r.GetArtifactVersion(ctx, name, LatestVersion)
	if err != nil {
		return Artifact{}, err
	}

	next, err := r.nextVersionNumber(ctx, name)
	if err != nil {
		return Artifact{}, err
	}

	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		version := EncodeVersion(next)

		art := Artifact{
			Name:        name,
			Version:     version,
			UpdateAt:    time.Now().UTC(),
			SHA256:      latest.SHA256,
			Size:        latest.Size,
			ContentType: latest.ContentType,
			S3URI:       r.ArtifactS3URI(name, version),
			Metadata:    mergeMetadata(latest.Metadata, extraMetadata),
		}

		av, err := marshalItem(r.itemFromArtifact(art))
		if err != nil {
			return Artifact{}, err
		}
		_, err = r.ddb.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(r.opts.TableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		})
		if err != nil {
			var ccf *ddbtypes.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				// lost the race, try the next number
				next++
				continue
			}
			return Artifact{}, xerrors.Wrapf(err, "claim version %s/%s in table %s", name, version, r.opts.TableName)
		}

		srcKey := r.artifactKey(name, LatestVersion)
		dstKey := r.artifactKey(name, version)
		_, err = r.s3.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(r.opts.Bucket),
			Key:        aws.String(dstKey),
			CopySource: aws.String(fmt.Sprintf("%s/%s", r.opts.Bucket, srcKey)),
		})
		if err != nil {
			// roll back the claim so the number can be reused
			_, delErr := r.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.opts.TableName),
				Key:       itemKey(name, version),
			})
			if delErr != nil {
				r.logger.Error(ctx, delErr, "failed to roll back version claim after copy failure",
					"artifact", name,
					"version", version,
				)
			}
			return Artifact{}, xerrors.Wrapf(err, "copy s3://%s/%s to %s", r.opts.Bucket, srcKey, dstKey)
		}

		r.logger.Info(ctx, "artifact version published",
			"artifact", name,
			"version", version,
			"sha256", art.SHA256,
			"s3_uri", art.S3URI,
		)
		return art, nil
	}

	return Artifact{}, xerrors.Newf("publish %s: gave up after %d contended attempts", name, maxPublishAttempts)
}

// nextVersionNumber returns one past the highest published number. A single
// newest-first page is enough: the first numbered item is the maximum.
func (r *Repository) nextVersionNumber(ctx context.Context, name string) (int64, error) {
	out, err := r.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.opts.TableName),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: name},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, xerrors.Wrapf(err, "query versions of %s from table %s", name, r.opts.TableName)
	}

	max := int64(0)
	for _, av := range out.Items {
		it, err := unmarshalItem(av)
		if err != nil {
			return 0, err
		}
		if it.SK == LatestVersion {
			continue
		}
		n, err := ParseVersion(it.SK)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
		break
	}
	return max + 1, nil
}

func mergeMetadata(base, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
