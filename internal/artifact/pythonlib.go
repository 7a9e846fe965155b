package artifact

import (
	"context"
	"os"
	"path/filepath"

	"github.com/keithlinneman/glue-artifact-store/internal/hashutil"
	"github.com/keithlinneman/glue-artifact-store/internal/pybuild"
	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// SuffixPythonLib is the object key suffix for Python library payloads.
const SuffixPythonLib = ".zip"

// PythonLibArtifact packages a Python library directory as a zip
// suitable for a Glue job's --extra-py-files. The payload lands at
// s3://{bucket}/{prefix}/{name}/LATEST.zip.
type PythonLibArtifact struct {
	*Base
	libDir   string
	buildDir string
}

type PythonLibOptions struct {
	Options

	// LibDir is the Python library source directory.
	LibDir string

	// BuildDir holds the staged library and the built zip. It is reset
	// on every Put so stale files cannot leak into the artifact.
	BuildDir string
}

func NewPythonLib(opts PythonLibOptions) (*PythonLibArtifact, error) {
	if opts.LibDir == "" {
		return nil, xerrors.New("artifact: LibDir is required")
	}
	if opts.BuildDir == "" {
		return nil, xerrors.New("artifact: BuildDir is required")
	}
	base, err := newBase(opts.Options, SuffixPythonLib)
	if err != nil {
		return nil, err
	}
	libDir, err := filepath.Abs(opts.LibDir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve lib dir %s", opts.LibDir)
	}
	buildDir, err := filepath.Abs(opts.BuildDir)
	if err != nil {
		return nil, xerrors.Wrapf(err, "resolve build dir %s", opts.BuildDir)
	}
	return &PythonLibArtifact{Base: base, libDir: libDir, buildDir: buildDir}, nil
}

// LibDir returns the library source directory.
func (a *PythonLibArtifact) LibDir() string { return a.libDir }

// builtLibDir is the staged copy of the library inside the build dir.
func (a *PythonLibArtifact) builtLibDir() string {
	return filepath.Join(a.buildDir, filepath.Base(a.libDir))
}

// builtZipPath is where the packaged zip is written.
func (a *PythonLibArtifact) builtZipPath() string {
	return filepath.Join(a.buildDir, filepath.Base(a.libDir)+SuffixPythonLib)
}

// Put stages the library into the build dir, packages it as a zip, and
// uploads it as the artifact's LATEST version. The version metadata
// records a digest of the staged source tree under
// glue_python_lib_sha256, so an unchanged library dedupes even though
// zip bytes could vary across toolchains.
func (a *PythonLibArtifact) Put(ctx context.Context, extraMetadata map[string]string) (vstore.Artifact, error) {
	if err := pybuild.BuildLib(a.libDir, a.builtLibDir()); err != nil {
		return vstore.Artifact{}, err
	}
	if err := pybuild.ZipDir(a.builtLibDir(), a.builtZipPath()); err != nil {
		return vstore.Artifact{}, err
	}

	libHash, err := hashutil.HashPaths([]string{a.builtLibDir()})
	if err != nil {
		return vstore.Artifact{}, xerrors.Wrap(err, "hash built python lib")
	}
	content, err := os.ReadFile(a.builtZipPath())
	if err != nil {
		return vstore.Artifact{}, xerrors.Wrapf(err, "read built zip %s", a.builtZipPath())
	}

	metadata := map[string]string{
		MetaPythonLibSHA256: libHash,
	}
	for k, v := range extraMetadata {
		metadata[k] = v
	}

	return a.Repo().PutArtifact(ctx, a.Name(), content, "application/zip", metadata)
}
