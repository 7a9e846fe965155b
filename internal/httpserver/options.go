package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/glue-artifact-store/internal/health"
	"github.com/keithlinneman/glue-artifact-store/internal/httpmw"
	"github.com/keithlinneman/glue-artifact-store/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	APIRoutes    func(chi.Router)
	Health       health.Probe
	Readiness    health.Probe
}
