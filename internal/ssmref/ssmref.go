// Package ssmref maintains an SSM parameter that points at the current
// published version of an artifact, so Glue job deployments can resolve
// "which version is live" without querying the version table.
package ssmref

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// SSMAPI is the subset of the SSM API needed to maintain version
// pointers. Extracted as an interface to enable unit testing without
// live AWS credentials.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Pointer reads and writes the current-version parameter for artifacts
// under a common parameter prefix.
type Pointer struct {
	client SSMAPI
	prefix string
}

// New builds a Pointer rooted at prefix, e.g. "/glue-artifact". The
// parameter for artifact "my-etl" then lives at
// "/glue-artifact/my-etl/current-version".
func New(client SSMAPI, prefix string) (*Pointer, error) {
	if client == nil {
		return nil, xerrors.New("ssm client is required")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, xerrors.New("parameter prefix is required")
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Pointer{client: client, prefix: prefix}, nil
}

// ParamName returns the full parameter name for an artifact.
func (p *Pointer) ParamName(artifactName string) string {
	return fmt.Sprintf("%s/%s/current-version", p.prefix, artifactName)
}

// CurrentVersion reads the published version an artifact's parameter
// points at.
func (p *Pointer) CurrentVersion(ctx context.Context, artifactName string) (string, error) {
	name := p.ParamName(artifactName)
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name: aws.String(name),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	version := strings.TrimSpace(*out.Parameter.Value)
	if version == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return version, nil
}

// SetCurrentVersion points an artifact's parameter at version,
// overwriting any previous value.
func (p *Pointer) SetCurrentVersion(ctx context.Context, artifactName, version string) error {
	name := p.ParamName(artifactName)
	_, err := p.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(name),
		Value:     aws.String(version),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put SSM parameter %s", name)
	}
	return nil
}
