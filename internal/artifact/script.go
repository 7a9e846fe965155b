package artifact

import (
	"context"
	"os"

	"github.com/keithlinneman/glue-artifact-store/internal/hashutil"
	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// SuffixETLScript is the object key suffix for ETL script payloads.
const SuffixETLScript = ".py"

// ETLScriptArtifact packages a single Glue ETL script file. The payload
// lands at s3://{bucket}/{prefix}/{name}/LATEST.py.
type ETLScriptArtifact struct {
	*Base
	scriptPath string
}

type ETLScriptOptions struct {
	Options

	// ScriptPath is the local path of the Glue ETL Python script.
	ScriptPath string
}

func NewETLScript(opts ETLScriptOptions) (*ETLScriptArtifact, error) {
	if opts.ScriptPath == "" {
		return nil, xerrors.New("artifact: ScriptPath is required")
	}
	base, err := newBase(opts.Options, SuffixETLScript)
	if err != nil {
		return nil, err
	}
	return &ETLScriptArtifact{Base: base, scriptPath: opts.ScriptPath}, nil
}

// ScriptPath returns the local script path this artifact packages.
func (a *ETLScriptArtifact) ScriptPath() string { return a.scriptPath }

// Put uploads the script as the artifact's LATEST version. The version
// metadata records the script's sha256 under glue_etl_script_sha256;
// extraMetadata entries are merged in on top.
func (a *ETLScriptArtifact) Put(ctx context.Context, extraMetadata map[string]string) (vstore.Artifact, error) {
	content, err := os.ReadFile(a.scriptPath)
	if err != nil {
		return vstore.Artifact{}, xerrors.Wrapf(err, "read ETL script %s", a.scriptPath)
	}

	metadata := map[string]string{
		MetaETLScriptSHA256: hashutil.SHA256Hex(content),
	}
	for k, v := range extraMetadata {
		metadata[k] = v
	}

	return a.Repo().PutArtifact(ctx, a.Name(), content, "text/plain", metadata)
}
