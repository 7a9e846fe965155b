package vstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LatestVersion is the mutable head every put writes to. Numbered versions
// are only ever created by Publish and are immutable afterwards.
const LatestVersion = "LATEST"

// versionDigits is the zero-padded width of published version strings, so
// they sort lexicographically in both S3 listings and the DynamoDB sort key.
const versionDigits = 6

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrVersionNotFound  = errors.New("artifact version not found")
)

// Artifact is one stored version of a named artifact.
type Artifact struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	UpdateAt    time.Time         `json:"update_at"`
	SHA256      string            `json:"sha256"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	S3URI       string            `json:"s3_uri"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsLatest reports whether this record is the mutable head.
func (a Artifact) IsLatest() bool { return a.Version == LatestVersion }

// EncodeVersion renders a version number as its padded string form.
func EncodeVersion(n int64) string {
	return fmt.Sprintf("%0*d", versionDigits, n)
}

// ParseVersion parses a padded or bare numeric version string.
func ParseVersion(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", s, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("invalid version %q: must be >= 1", s)
	}
	return n, nil
}

// NormalizeVersion maps user input to the stored version string: "latest"
// in any case becomes LatestVersion, numeric input gets zero-padded.
func NormalizeVersion(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, LatestVersion) {
		return LatestVersion, nil
	}
	n, err := ParseVersion(s)
	if err != nil {
		return "", err
	}
	return EncodeVersion(n), nil
}
