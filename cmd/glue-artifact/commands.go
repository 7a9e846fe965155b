package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/glue-artifact-store/internal/artifact"
	"github.com/keithlinneman/glue-artifact-store/internal/cfg"
	"github.com/keithlinneman/glue-artifact-store/internal/kmssign"
	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/ssmref"
	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

type awsClients struct {
	s3  *s3.Client
	ddb *dynamodb.Client
	kms *kms.Client
	ssm *ssm.Client
}

func newAWSClients(ctx context.Context, conf cfg.App) (awsClients, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(conf.Region))
	if err != nil {
		return awsClients{}, xerrors.Wrap(err, "load AWS config")
	}
	c := awsClients{
		s3:  s3.NewFromConfig(awsCfg),
		ddb: dynamodb.NewFromConfig(awsCfg),
	}
	if conf.SigningKeyARN != "" {
		c.kms = kms.NewFromConfig(awsCfg)
	}
	if conf.SSMPointerPrefix != "" {
		c.ssm = ssm.NewFromConfig(awsCfg)
	}
	return c, nil
}

func suffixForType(artifactType string) (string, error) {
	switch artifactType {
	case cfg.TypeETLScript:
		return artifact.SuffixETLScript, nil
	case cfg.TypePythonLib:
		return artifact.SuffixPythonLib, nil
	}
	return "", xerrors.Newf("unknown artifact type %q", artifactType)
}

// newRepo binds the store directly, for subcommands that work on raw
// versions rather than a local artifact source.
func newRepo(conf cfg.App, L log.Logger, c awsClients, suffix string) (*vstore.Repository, error) {
	return vstore.New(vstore.Options{
		Logger:    L,
		Region:    conf.Region,
		Bucket:    conf.S3Bucket,
		Prefix:    conf.S3Prefix,
		TableName: conf.DynamoDBTableName,
		Suffix:    suffix,
		S3:        c.s3,
		DynamoDB:  c.ddb,
	})
}

// sourceArtifact is what put/publish need from either artifact type.
type sourceArtifact interface {
	Name() string
	Put(ctx context.Context, extraMetadata map[string]string) (vstore.Artifact, error)
	PublishVersion(ctx context.Context, extraMetadata map[string]string) (vstore.Artifact, error)
	GetVersion(ctx context.Context, version string) (vstore.Artifact, error)
	S3URI(version string) (string, error)
}

func newArtifact(conf cfg.App, L log.Logger, c awsClients) (sourceArtifact, error) {
	base := artifact.Options{
		Logger:            L,
		Region:            conf.Region,
		S3Bucket:          conf.S3Bucket,
		S3Prefix:          conf.S3Prefix,
		DynamoDBTableName: conf.DynamoDBTableName,
		ArtifactName:      conf.ArtifactName,
		S3:                c.s3,
		DynamoDB:          c.ddb,
	}
	if c.kms != nil {
		base.Signer = kmssign.NewSigner(c.kms, conf.SigningKeyARN, "")
	}
	if c.ssm != nil {
		ptr, err := ssmref.New(c.ssm, conf.SSMPointerPrefix)
		if err != nil {
			return nil, err
		}
		base.Pointer = ptr
	}

	switch conf.ArtifactType {
	case cfg.TypeETLScript:
		return artifact.NewETLScript(artifact.ETLScriptOptions{
			Options:    base,
			ScriptPath: conf.ScriptPath,
		})
	case cfg.TypePythonLib:
		return artifact.NewPythonLib(artifact.PythonLibOptions{
			Options:  base,
			LibDir:   conf.LibDir,
			BuildDir: conf.BuildDir,
		})
	}
	return nil, xerrors.Newf("unknown artifact type %q", conf.ArtifactType)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runBootstrap(ctx context.Context, args []string) error {
	conf, err := parseConfig("bootstrap", args, false, nil)
	if err != nil {
		return err
	}
	L, err := newLogger(conf, "bootstrap")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}
	repo, err := newRepo(conf, L, clients, "")
	if err != nil {
		return err
	}
	if err := repo.Bootstrap(ctx, vstore.BootstrapOptions{
		ReadCapacityUnits:  int64(conf.ReadCapacity),
		WriteCapacityUnits: int64(conf.WriteCapacity),
	}); err != nil {
		return err
	}
	L.Info(ctx, "store bootstrapped",
		"s3_bucket", conf.S3Bucket,
		"dynamodb_table", conf.DynamoDBTableName,
	)
	return nil
}

func runPut(ctx context.Context, args []string) error {
	md := metadataFlag{}
	conf, err := parseConfig("put", args, true, func(fs *flag.FlagSet) {
		fs.Var(md, "metadata", "extra metadata key=value for this version (repeatable)")
	})
	if err != nil {
		return err
	}
	L, err := newLogger(conf, "put")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}
	art, err := newArtifact(conf, L, clients)
	if err != nil {
		return err
	}
	res, err := art.Put(ctx, md)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runPublish(ctx context.Context, args []string) error {
	md := metadataFlag{}
	conf, err := parseConfig("publish", args, true, func(fs *flag.FlagSet) {
		fs.Var(md, "metadata", "extra metadata key=value for the published version (repeatable)")
	})
	if err != nil {
		return err
	}
	L, err := newLogger(conf, "publish")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}
	art, err := newArtifact(conf, L, clients)
	if err != nil {
		return err
	}
	res, err := art.PublishVersion(ctx, md)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runGetPath(ctx context.Context, args []string) error {
	var version string
	var verify bool
	conf, err := parseConfig("get-path", args, false, func(fs *flag.FlagSet) {
		fs.StringVar(&version, "version", "", "artifact version: number, \"latest\" (default), or \"current\" to resolve the SSM pointer")
		fs.BoolVar(&verify, "verify", false, "check the version exists in the store before printing")
	})
	if err != nil {
		return err
	}
	if conf.ArtifactName == "" {
		return xerrors.New("ARTIFACT_NAME is required")
	}
	L, err := newLogger(conf, "get-path")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	suffix, err := suffixForType(conf.ArtifactType)
	if err != nil {
		return err
	}
	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}

	if version == "current" {
		if clients.ssm == nil {
			return xerrors.New("-version current needs SSM_POINTER_PREFIX")
		}
		ptr, err := ssmref.New(clients.ssm, conf.SSMPointerPrefix)
		if err != nil {
			return err
		}
		if version, err = ptr.CurrentVersion(ctx, conf.ArtifactName); err != nil {
			return err
		}
	}
	v, err := vstore.NormalizeVersion(version)
	if err != nil {
		return err
	}

	repo, err := newRepo(conf, L, clients, suffix)
	if err != nil {
		return err
	}
	if verify {
		if _, err := repo.GetArtifactVersion(ctx, conf.ArtifactName, v); err != nil {
			return err
		}
	}
	fmt.Println(repo.ArtifactS3URI(conf.ArtifactName, v))
	return nil
}

func runList(ctx context.Context, args []string) error {
	conf, err := parseConfig("list", args, false, nil)
	if err != nil {
		return err
	}
	L, err := newLogger(conf, "list")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}
	// items carry their own suffix, so the repo-level one is unused here
	repo, err := newRepo(conf, L, clients, "")
	if err != nil {
		return err
	}

	if conf.ArtifactName != "" {
		versions, err := repo.ListArtifactVersions(ctx, conf.ArtifactName)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return xerrors.Wrapf(vstore.ErrArtifactNotFound, "%s", conf.ArtifactName)
		}
		return printJSON(versions)
	}

	names, err := repo.ListArtifactNames(ctx)
	if err != nil {
		return err
	}
	return printJSON(names)
}

func runPurge(ctx context.Context, args []string) error {
	var version string
	conf, err := parseConfig("purge", args, false, func(fs *flag.FlagSet) {
		fs.StringVar(&version, "version", "", "delete only this version (default: every version)")
	})
	if err != nil {
		return err
	}
	if conf.ArtifactName == "" {
		return xerrors.New("ARTIFACT_NAME is required")
	}
	L, err := newLogger(conf, "purge")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	suffix, err := suffixForType(conf.ArtifactType)
	if err != nil {
		return err
	}
	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		return err
	}
	repo, err := newRepo(conf, L, clients, suffix)
	if err != nil {
		return err
	}

	if version != "" {
		v, err := vstore.NormalizeVersion(version)
		if err != nil {
			return err
		}
		return repo.DeleteArtifactVersion(ctx, conf.ArtifactName, v)
	}
	return repo.PurgeArtifact(ctx, conf.ArtifactName)
}
