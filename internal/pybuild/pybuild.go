// Package pybuild stages a Python library directory into a clean build
// tree and packages it as a zip payload suitable for a Glue job's
// --extra-py-files argument.
package pybuild

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// zipEpoch is the fixed modification time stamped on every zip entry so
// that rebuilding an unchanged tree produces byte-identical output.
var zipEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

var skipDirNames = map[string]bool{
	"__pycache__": true,
	".git":        true,
}

var skipFileSuffixes = []string{".pyc", ".pyo"}

var skipFileNames = map[string]bool{
	".DS_Store": true,
}

// skipDir reports whether an entire directory subtree is excluded from
// the build output.
func skipDir(name string) bool {
	if skipDirNames[name] {
		return true
	}
	if strings.HasSuffix(name, ".egg-info") {
		return true
	}
	// hidden directories (.tox, .venv, .mypy_cache, ...)
	return strings.HasPrefix(name, ".") && name != "."
}

func skipFile(name string) bool {
	if skipFileNames[name] {
		return true
	}
	for _, suffix := range skipFileSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// BuildLib copies the Python library rooted at srcDir into dstDir,
// dropping bytecode caches, packaging metadata, and editor droppings.
// dstDir is removed first so stale files from a previous build cannot
// leak into the artifact.
func BuildLib(srcDir, dstDir string) error {
	srcInfo, err := os.Stat(srcDir)
	if err != nil {
		return xerrors.Wrapf(err, "stat python lib dir %s", srcDir)
	}
	if !srcInfo.IsDir() {
		return xerrors.Newf("python lib path %s is not a directory", srcDir)
	}

	if err := os.RemoveAll(dstDir); err != nil {
		return xerrors.Wrapf(err, "reset build dir %s", dstDir)
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return xerrors.Wrapf(err, "create build dir %s", dstDir)
	}

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dstDir, rel), 0o755)
		}
		if !d.Type().IsRegular() || skipFile(d.Name()) {
			return nil
		}
		return copyFile(path, filepath.Join(dstDir, rel))
	})
	if err != nil {
		return xerrors.Wrapf(err, "copy python lib %s", srcDir)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ZipDir writes the contents of dir (not the directory itself) to a zip
// archive at dst. Entries are sorted and carry a fixed timestamp so the
// output is deterministic for a given input tree.
func ZipDir(dir, dst string) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrapf(err, "walk build dir %s", dir)
	}
	sort.Strings(files)

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return xerrors.Wrapf(err, "create zip %s", dst)
	}
	zw := zip.NewWriter(out)

	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return closeZipOnErr(zw, out, err)
		}
		hdr := &zip.FileHeader{
			Name:     filepath.ToSlash(rel),
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return closeZipOnErr(zw, out, err)
		}
		in, err := os.Open(path)
		if err != nil {
			return closeZipOnErr(zw, out, err)
		}
		_, err = io.Copy(w, in)
		in.Close()
		if err != nil {
			return closeZipOnErr(zw, out, err)
		}
	}

	if err := zw.Close(); err != nil {
		out.Close()
		return xerrors.Wrapf(err, "finalize zip %s", dst)
	}
	if err := out.Close(); err != nil {
		return xerrors.Wrapf(err, "close zip %s", dst)
	}
	return nil
}

func closeZipOnErr(zw *zip.Writer, out *os.File, err error) error {
	zw.Close()
	out.Close()
	return xerrors.Wrap(err, "write zip entry")
}
