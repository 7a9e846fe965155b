package registryhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
)

type fakeRegistry struct {
	artifacts map[string][]vstore.Artifact
	err       error
}

func (f *fakeRegistry) ListArtifactNames(_ context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	names := make([]string, 0, len(f.artifacts))
	for name := range f.artifacts {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeRegistry) ListArtifactVersions(_ context.Context, name string) ([]vstore.Artifact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.artifacts[name], nil
}

func (f *fakeRegistry) GetArtifactVersion(_ context.Context, name, version string) (vstore.Artifact, error) {
	if f.err != nil {
		return vstore.Artifact{}, f.err
	}
	versions, ok := f.artifacts[name]
	if !ok {
		return vstore.Artifact{}, vstore.ErrArtifactNotFound
	}
	for _, a := range versions {
		if a.Version == version {
			return a, nil
		}
	}
	return vstore.Artifact{}, vstore.ErrVersionNotFound
}

type opSpy struct {
	ops map[string]string
}

func (s *opSpy) IncStoreOp(op, outcome string) {
	if s.ops == nil {
		s.ops = map[string]string{}
	}
	s.ops[op] = outcome
}

func (s *opSpy) ObserveStoreOpDuration(string, float64) {}

func testArtifact(name, version string) vstore.Artifact {
	return vstore.Artifact{
		Name:        name,
		Version:     version,
		UpdateAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SHA256:      "ab12",
		Size:        42,
		ContentType: "text/plain",
		S3URI:       "s3://bucket/glue/artifacts/" + name + "/" + version + ".py",
		Metadata:    map[string]string{"glue_etl_script_sha256": "ab12"},
	}
}

func newTestServer(reg Registry, spy *opSpy) *httptest.Server {
	r := chi.NewRouter()
	var m StoreMetrics
	if spy != nil {
		m = spy
	}
	NewAPI(reg, nil, m).RegisterRoutes(r)
	return httptest.NewServer(r)
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestListArtifacts(t *testing.T) {
	reg := &fakeRegistry{artifacts: map[string][]vstore.Artifact{
		"my-etl": {testArtifact("my-etl", "LATEST")},
	}}
	srv := newTestServer(reg, nil)
	defer srv.Close()

	var resp ListArtifactsResponse
	if status := getJSON(t, srv, "/api/v1/artifacts", &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(resp.Artifacts) != 1 || resp.Artifacts[0] != "my-etl" {
		t.Fatalf("artifacts = %v, want [my-etl]", resp.Artifacts)
	}
}

func TestListArtifactsEmpty(t *testing.T) {
	srv := newTestServer(&fakeRegistry{artifacts: map[string][]vstore.Artifact{}}, nil)
	defer srv.Close()

	var resp ListArtifactsResponse
	if status := getJSON(t, srv, "/api/v1/artifacts", &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp.Artifacts == nil {
		t.Fatal("artifacts should serialize as [], not null")
	}
}

func TestListVersions(t *testing.T) {
	reg := &fakeRegistry{artifacts: map[string][]vstore.Artifact{
		"my-etl": {
			testArtifact("my-etl", "LATEST"),
			testArtifact("my-etl", "000002"),
			testArtifact("my-etl", "000001"),
		},
	}}
	srv := newTestServer(reg, nil)
	defer srv.Close()

	var resp ListVersionsResponse
	if status := getJSON(t, srv, "/api/v1/artifacts/my-etl/versions", &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp.Name != "my-etl" {
		t.Fatalf("name = %q", resp.Name)
	}
	if len(resp.Versions) != 3 || resp.Versions[1].Version != "000002" {
		t.Fatalf("versions = %+v", resp.Versions)
	}
}

func TestListVersionsUnknownArtifact(t *testing.T) {
	srv := newTestServer(&fakeRegistry{artifacts: map[string][]vstore.Artifact{}}, nil)
	defer srv.Close()

	var resp map[string]string
	if status := getJSON(t, srv, "/api/v1/artifacts/nope/versions", &resp); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if resp["error"] == "" {
		t.Fatal("expected an error field")
	}
}

func TestGetVersion(t *testing.T) {
	reg := &fakeRegistry{artifacts: map[string][]vstore.Artifact{
		"my-etl": {testArtifact("my-etl", "000003")},
	}}
	spy := &opSpy{}
	srv := newTestServer(reg, spy)
	defer srv.Close()

	var resp VersionResponse
	// bare numeric versions are normalized before hitting the store
	if status := getJSON(t, srv, "/api/v1/artifacts/my-etl/versions/3", &resp); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if resp.Version != "000003" || resp.SHA256 != "ab12" {
		t.Fatalf("resp = %+v", resp)
	}
	if spy.ops["get_version"] != "ok" {
		t.Fatalf("ops = %v, want get_version=ok", spy.ops)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	reg := &fakeRegistry{artifacts: map[string][]vstore.Artifact{
		"my-etl": {testArtifact("my-etl", "000001")},
	}}
	spy := &opSpy{}
	srv := newTestServer(reg, spy)
	defer srv.Close()

	if status := getJSON(t, srv, "/api/v1/artifacts/my-etl/versions/000009", nil); status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if spy.ops["get_version"] != "not_found" {
		t.Fatalf("ops = %v, want get_version=not_found", spy.ops)
	}
}

func TestGetVersionMalformed(t *testing.T) {
	srv := newTestServer(&fakeRegistry{}, nil)
	defer srv.Close()

	if status := getJSON(t, srv, "/api/v1/artifacts/my-etl/versions/bogus", nil); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestRegistryErrorIs500(t *testing.T) {
	reg := &fakeRegistry{err: context.DeadlineExceeded}
	spy := &opSpy{}
	srv := newTestServer(reg, spy)
	defer srv.Close()

	var resp map[string]string
	if status := getJSON(t, srv, "/api/v1/artifacts", &resp); status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if resp["error"] != "internal error" {
		t.Fatalf("error = %q", resp["error"])
	}
	if spy.ops["list_names"] != "error" {
		t.Fatalf("ops = %v, want list_names=error", spy.ops)
	}
}
