package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/glue-artifact-store/internal/log"
)

// Artifact source types.
const (
	TypeETLScript = "etl-script"
	TypePythonLib = "python-lib"
)

type App struct {
	LogJSON         bool
	LogLevel        string
	StacktraceLevel string

	Region            string
	S3Bucket          string
	S3Prefix          string
	DynamoDBTableName string

	ArtifactName string
	ArtifactType string
	ScriptPath   string
	LibDir       string
	BuildDir     string

	SigningKeyARN    string
	SSMPointerPrefix string

	ReadCapacity  int
	WriteCapacity int

	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64
	RateLimitRPS    float64
	RateLimitBurst  int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")

	fs.StringVar(&c.Region, "region", "", "AWS region of the artifact store")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "S3 bucket holding artifact payloads")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "glue/artifacts", "S3 key prefix for artifact payloads")
	fs.StringVar(&c.DynamoDBTableName, "dynamodb-table", "glue-artifact-versions", "DynamoDB table holding version metadata")

	fs.StringVar(&c.ArtifactName, "artifact-name", "", "artifact name in the store")
	fs.StringVar(&c.ArtifactType, "artifact-type", TypeETLScript, "etl-script|python-lib")
	fs.StringVar(&c.ScriptPath, "script-path", "", "local path of the Glue ETL script (etl-script)")
	fs.StringVar(&c.LibDir, "lib-dir", "", "local Python library directory (python-lib)")
	fs.StringVar(&c.BuildDir, "build-dir", "", "build staging directory, reset on every put (python-lib)")

	fs.StringVar(&c.SigningKeyARN, "signing-key-arn", "", "KMS key ARN for signing published version digests (optional)")
	fs.StringVar(&c.SSMPointerPrefix, "ssm-pointer-prefix", "", "SSM parameter prefix for current-version pointers (optional)")

	fs.IntVar(&c.ReadCapacity, "dynamodb-read-capacity", 0, "provisioned read capacity units at bootstrap (0 = on-demand)")
	fs.IntVar(&c.WriteCapacity, "dynamodb-write-capacity", 0, "provisioned write capacity units at bootstrap (0 = on-demand)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "registry API listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-client request rate limit (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 20, "per-client request burst allowance")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// needArtifact is set for subcommands that operate on a single artifact
// (put, publish, get-path, purge); serve and bootstrap only bind the store.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App, needArtifact bool) error {
	var errs []error

	// Store binding
	if c.Region == "" {
		errs = append(errs, fmt.Errorf("REGION is required"))
	}
	if c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("S3_BUCKET is required"))
	}
	if c.DynamoDBTableName == "" {
		errs = append(errs, fmt.Errorf("DYNAMODB_TABLE is required"))
	}

	if needArtifact {
		if c.ArtifactName == "" {
			errs = append(errs, fmt.Errorf("ARTIFACT_NAME is required"))
		}
		switch c.ArtifactType {
		case TypeETLScript:
			if c.ScriptPath == "" {
				errs = append(errs, fmt.Errorf("SCRIPT_PATH is required when ARTIFACT_TYPE=%s", TypeETLScript))
			}
		case TypePythonLib:
			if c.LibDir == "" {
				errs = append(errs, fmt.Errorf("LIB_DIR is required when ARTIFACT_TYPE=%s", TypePythonLib))
			}
			if c.BuildDir == "" {
				errs = append(errs, fmt.Errorf("BUILD_DIR is required when ARTIFACT_TYPE=%s", TypePythonLib))
			}
		default:
			errs = append(errs, fmt.Errorf("invalid ARTIFACT_TYPE %q (must be %s or %s)", c.ArtifactType, TypeETLScript, TypePythonLib))
		}
	}

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Bootstrap capacity: both or neither
	if (c.ReadCapacity == 0) != (c.WriteCapacity == 0) {
		errs = append(errs, fmt.Errorf("DYNAMODB_READ_CAPACITY and DYNAMODB_WRITE_CAPACITY must be set together"))
	}
	if c.ReadCapacity < 0 || c.WriteCapacity < 0 {
		errs = append(errs, fmt.Errorf("capacity units must be >= 0"))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Rate limit
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %.2f)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is on (got %d)", c.RateLimitBurst))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
