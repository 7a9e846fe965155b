// Package artifact provides the Glue-facing artifact types. Each type
// binds an artifact name to the versioned store and knows how to turn
// its local source (an ETL script file, a Python library directory)
// into a store payload.
package artifact

import (
	"context"
	"encoding/base64"

	"github.com/keithlinneman/glue-artifact-store/internal/kmssign"
	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/ssmref"
	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// Metadata keys stamped on artifact versions.
const (
	MetaETLScriptSHA256 = "glue_etl_script_sha256"
	MetaPythonLibSHA256 = "glue_python_lib_sha256"
	MetaKMSSignature    = "kms_signature"
	MetaKMSKeyARN       = "kms_key_arn"
)

// Options configures the store binding shared by all artifact types.
type Options struct {
	Logger log.Logger

	Region            string
	S3Bucket          string
	S3Prefix          string
	DynamoDBTableName string

	// ArtifactName is the store-level name; the payload lands at
	// s3://{S3Bucket}/{S3Prefix}/{ArtifactName}/LATEST{suffix}.
	ArtifactName string

	S3       vstore.S3API
	DynamoDB vstore.DynamoDBAPI

	// Signer, when set, signs each published version's digest with KMS
	// and records the signature in the version metadata.
	Signer *kmssign.Signer

	// Pointer, when set, advances the artifact's current-version SSM
	// parameter after each publish.
	Pointer *ssmref.Pointer
}

// Base wires an artifact name to its repository and carries the publish
// hooks. The concrete artifact types embed it.
type Base struct {
	name    string
	repo    *vstore.Repository
	logger  log.Logger
	signer  *kmssign.Signer
	pointer *ssmref.Pointer
}

func newBase(opts Options, suffix string) (*Base, error) {
	if opts.ArtifactName == "" {
		return nil, xerrors.New("artifact: ArtifactName is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	repo, err := vstore.New(vstore.Options{
		Logger:    opts.Logger,
		Region:    opts.Region,
		Bucket:    opts.S3Bucket,
		Prefix:    opts.S3Prefix,
		TableName: opts.DynamoDBTableName,
		Suffix:    suffix,
		S3:        opts.S3,
		DynamoDB:  opts.DynamoDB,
	})
	if err != nil {
		return nil, err
	}
	return &Base{
		name:    opts.ArtifactName,
		repo:    repo,
		logger:  opts.Logger,
		signer:  opts.Signer,
		pointer: opts.Pointer,
	}, nil
}

// Name returns the artifact's store-level name.
func (b *Base) Name() string { return b.name }

// Repo exposes the underlying versioned repository.
func (b *Base) Repo() *vstore.Repository { return b.repo }

// Bootstrap creates the store's S3 bucket and DynamoDB table.
func (b *Base) Bootstrap(ctx context.Context, opts vstore.BootstrapOptions) error {
	return b.repo.Bootstrap(ctx, opts)
}

// S3URI returns the artifact's S3 URI for a version. Version accepts
// the same forms as the store: "", "latest", "LATEST", or a number.
func (b *Base) S3URI(version string) (string, error) {
	v, err := vstore.NormalizeVersion(version)
	if err != nil {
		return "", err
	}
	return b.repo.ArtifactS3URI(b.name, v), nil
}

// GetVersion fetches version metadata from the store.
func (b *Base) GetVersion(ctx context.Context, version string) (vstore.Artifact, error) {
	v, err := vstore.NormalizeVersion(version)
	if err != nil {
		return vstore.Artifact{}, err
	}
	return b.repo.GetArtifactVersion(ctx, b.name, v)
}

// PublishVersion freezes the current LATEST payload as the next
// immutable numbered version. When a signer is configured the version
// metadata carries a KMS signature over the payload digest; when a
// pointer is configured the artifact's current-version SSM parameter is
// advanced to the new version.
func (b *Base) PublishVersion(ctx context.Context, extraMetadata map[string]string) (vstore.Artifact, error) {
	extra := make(map[string]string, len(extraMetadata)+2)
	for k, v := range extraMetadata {
		extra[k] = v
	}

	if b.signer != nil {
		// The signature covers the LATEST digest as read here. A put
		// racing this publish invalidates it, same as it would change
		// which payload gets published.
		latest, err := b.repo.GetArtifactVersion(ctx, b.name, vstore.LatestVersion)
		if err != nil {
			return vstore.Artifact{}, err
		}
		sig, err := b.signer.SignDigest(ctx, latest.SHA256)
		if err != nil {
			return vstore.Artifact{}, xerrors.Wrapf(err, "sign artifact %s digest", b.name)
		}
		extra[MetaKMSSignature] = base64.StdEncoding.EncodeToString(sig)
		extra[MetaKMSKeyARN] = b.signer.KeyARN()
	}

	art, err := b.repo.PublishArtifactVersion(ctx, b.name, extra)
	if err != nil {
		return vstore.Artifact{}, err
	}

	if b.pointer != nil {
		if err := b.pointer.SetCurrentVersion(ctx, b.name, art.Version); err != nil {
			// the version is already published; surface the pointer
			// failure without pretending the publish failed
			b.logger.Error(ctx, err, "published version but failed to advance SSM pointer",
				"artifact", b.name, "version", art.Version)
			return art, xerrors.Wrapf(err, "advance current-version pointer for %s", b.name)
		}
	}
	return art, nil
}
