package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/glue-artifact-store/internal/health"
	"github.com/keithlinneman/glue-artifact-store/internal/httpserver"
	"github.com/keithlinneman/glue-artifact-store/internal/log"
	"github.com/keithlinneman/glue-artifact-store/internal/metrics"
	"github.com/keithlinneman/glue-artifact-store/internal/opshttp"
	"github.com/keithlinneman/glue-artifact-store/internal/otelx"
	"github.com/keithlinneman/glue-artifact-store/internal/prof"
	"github.com/keithlinneman/glue-artifact-store/internal/ratelimit"
	"github.com/keithlinneman/glue-artifact-store/internal/registryhttp"
	v "github.com/keithlinneman/glue-artifact-store/internal/version"
)

// drainSleep gives load balancers time to notice the failing readiness
// probe before the listeners close.
const drainSleep = 30 * time.Second

func runServe(ctx context.Context, args []string) error {
	conf, err := parseConfig("serve", args, false, nil)
	if err != nil {
		return err
	}

	vi := v.Get()

	L, err := newLogger(conf, "server")
	if err != nil {
		return err
	}
	defer L.Sync()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing registry server",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"s3_bucket", conf.S3Bucket,
		"s3_prefix", conf.S3Prefix,
		"dynamodb_table", conf.DynamoDBTableName,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"rate_limit_rps", conf.RateLimitRPS,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", &vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)

	// Insecure is fine: the exporter only ever talks to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	clients, err := newAWSClients(ctx, conf)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		return err
	}

	// the registry reads every artifact type; items carry their own suffix
	repo, err := newRepo(conf, L, clients, "")
	if err != nil {
		return err
	}
	api := registryhttp.NewAPI(repo, L, m)

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimitDenied()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)
	rateLimitMW := limiter.Middleware
	if conf.RateLimitRPS <= 0 {
		rateLimitMW = nil
	}

	apiHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		APIRoutes:    api.RegisterRoutes,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start registry http listener")
		return err
	}
	defer func() { _ = apiHTTPStop(context.Background()) }()

	// admin listener: metrics, health, pprof. Security groups restrict
	// inbound to internal monitoring infrastructure.
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills the process after its own timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop routing here
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed, draining", "sleep", drainSleep.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainSleep):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "registry http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
	return nil
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when the unit is Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
