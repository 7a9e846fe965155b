// Package hashutil computes the SHA-256 digests recorded in artifact
// metadata: raw bytes, streams, files, and whole directory trees.
package hashutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/keithlinneman/glue-artifact-store/internal/xerrors"
)

// SHA256Hex computes the SHA-256 hash of data and returns it as lowercase hex.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashEqual performs constant-time comparison of two hex-encoded hashes.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashReader computes SHA-256 of everything readable from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes SHA-256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return HashReader(f)
}

// HashPaths computes a deterministic digest over a set of files and
// directories. Each regular file contributes its slash-separated relative
// path and content hash, in sorted path order, so the result is stable
// across platforms and walk order. Renaming or moving a file changes the
// digest even when content is unchanged.
func HashPaths(paths []string) (string, error) {
	type entry struct {
		rel string
		sum string
	}
	entries := make([]entry, 0, 64)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return "", xerrors.Wrapf(err, "stat %s", p)
		}

		if !info.IsDir() {
			sum, err := HashFile(p)
			if err != nil {
				return "", xerrors.Wrapf(err, "hash %s", p)
			}
			entries = append(entries, entry{rel: filepath.Base(p), sum: sum})
			continue
		}

		root := p
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			sum, err := HashFile(path)
			if err != nil {
				return err
			}
			entries = append(entries, entry{rel: filepath.ToSlash(rel), sum: sum})
			return nil
		})
		if err != nil {
			return "", xerrors.Wrapf(err, "walk %s", root)
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\x00", e.rel, e.sum)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
