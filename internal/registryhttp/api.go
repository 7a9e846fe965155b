// Package registryhttp exposes a read-only JSON API over the artifact
// store, for CI dashboards and deploy tooling that needs to answer
// "what versions exist and which payload is live" without AWS
// credentials of its own.
package registryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/vstore"
)

// Registry is the store surface the API reads from.
type Registry interface {
	ListArtifactNames(ctx context.Context) ([]string, error)
	ListArtifactVersions(ctx context.Context, name string) ([]vstore.Artifact, error)
	GetArtifactVersion(ctx context.Context, name, version string) (vstore.Artifact, error)
}

// StoreMetrics is the subset of metrics the API records.
type StoreMetrics interface {
	IncStoreOp(op, outcome string)
	ObserveStoreOpDuration(op string, seconds float64)
}

// API implements the registry read endpoints.
type API struct {
	registry Registry
	logger   log.Logger
	metrics  StoreMetrics
}

func NewAPI(registry Registry, logger log.Logger, metrics StoreMetrics) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterRoutes attaches registry endpoints to the router
func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/artifacts", api.HandleListArtifacts)
	r.Get("/api/v1/artifacts/{name}/versions", api.HandleListVersions)
	r.Get("/api/v1/artifacts/{name}/versions/{version}", api.HandleGetVersion)
}

// VersionResponse is one artifact version.
type VersionResponse struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	UpdateAt    time.Time         `json:"update_at"`
	SHA256      string            `json:"sha256"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type,omitempty"`
	S3URI       string            `json:"s3_uri"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListArtifactsResponse lists the artifact names in the store.
type ListArtifactsResponse struct {
	Artifacts []string `json:"artifacts"`
}

// ListVersionsResponse lists an artifact's versions, newest first.
type ListVersionsResponse struct {
	Name     string            `json:"name"`
	Versions []VersionResponse `json:"versions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func versionResponse(a vstore.Artifact) VersionResponse {
	return VersionResponse{
		Name:        a.Name,
		Version:     a.Version,
		UpdateAt:    a.UpdateAt.Truncate(time.Second),
		SHA256:      a.SHA256,
		Size:        a.Size,
		ContentType: a.ContentType,
		S3URI:       a.S3URI,
		Metadata:    a.Metadata,
	}
}

func (api *API) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	start := time.Now()
	names, err := api.registry.ListArtifactNames(ctx)
	api.record("list_names", start, err)
	if err != nil {
		api.serveError(ctx, w, err, "list artifacts")
		return
	}
	if names == nil {
		names = []string{}
	}

	api.writeJSON(ctx, w, http.StatusOK, ListArtifactsResponse{Artifacts: names})
}

func (api *API) HandleListVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	start := time.Now()
	versions, err := api.registry.ListArtifactVersions(ctx, name)
	api.record("list_versions", start, err)
	if err != nil {
		api.serveError(ctx, w, err, "list versions")
		return
	}
	if len(versions) == 0 {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "artifact not found"})
		return
	}

	resp := ListVersionsResponse{Name: name, Versions: make([]VersionResponse, 0, len(versions))}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, versionResponse(v))
	}

	api.logger.Debug(ctx, "served version list", "artifact", name, "versions", len(versions))
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	version, err := vstore.NormalizeVersion(chi.URLParam(r, "version"))
	if err != nil {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "malformed version"})
		return
	}

	start := time.Now()
	art, err := api.registry.GetArtifactVersion(ctx, name, version)
	api.record("get_version", start, err)
	if err != nil {
		api.serveError(ctx, w, err, "get version")
		return
	}

	api.writeJSON(ctx, w, http.StatusOK, versionResponse(art))
}

// serveError maps store errors to HTTP responses. Not-found sentinels
// become 404s, everything else a generic 500 with the detail kept in the
// logs.
func (api *API) serveError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, vstore.ErrArtifactNotFound) || errors.Is(err, vstore.ErrVersionNotFound) {
		api.writeJSON(ctx, w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	api.logger.Error(ctx, err, msg)
	api.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (api *API) record(op string, start time.Time, err error) {
	if api.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, vstore.ErrArtifactNotFound), errors.Is(err, vstore.ErrVersionNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	api.metrics.IncStoreOp(op, outcome)
	api.metrics.ObserveStoreOpDuration(op, time.Since(start).Seconds())
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
