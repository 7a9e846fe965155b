// glue-artifact packages Glue ETL scripts and Python libraries into a
// versioned S3/DynamoDB artifact store and serves a read-only registry
// API over it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/keithlinneman/glue-artifact-store/internal/cfg"
	"github.com/keithlinneman/glue-artifact-store/internal/log"
	v "github.com/keithlinneman/glue-artifact-store/internal/version"
)

const envPrefix = "GLUEART_"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "version", "-V", "--version":
		printVersion()
		return
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "bootstrap":
		err = runBootstrap(ctx, args)
	case "put":
		err = runPut(ctx, args)
	case "publish":
		err = runPublish(ctx, args)
	case "get-path":
		err = runGetPath(ctx, args)
	case "list":
		err = runList(ctx, args)
	case "purge":
		err = runPurge(ctx, args)
	case "serve":
		err = runServe(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage(w *os.File) {
	fmt.Fprintf(w, `usage: %s <command> [flags]

commands:
  bootstrap   create the S3 bucket and DynamoDB table backing the store
  put         upload the local artifact source as the LATEST version
  publish     freeze LATEST as the next immutable numbered version
  get-path    print the S3 URI for a version of an artifact
  list        list artifact names, or versions of one artifact
  purge       delete one version, or every version, of an artifact
  serve       run the read-only registry HTTP API
  version     print version and build information

Every flag can also be set from the environment: flag -foo-bar maps to
%sFOO_BAR, with CLI flags taking precedence. Run %s <command> -h for
command flags.
`, v.AppName, envPrefix, v.AppName)
}

func printVersion() {
	vi := v.Get()
	fmt.Printf(
		"%s %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
		vi.AppName, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
		vi.VCSDirty != nil && *vi.VCSDirty,
	)
}

// parseConfig binds the shared config to a fresh FlagSet for one
// subcommand, fills unset flags from the environment, and validates.
func parseConfig(cmd string, args []string, needArtifact bool, extra func(*flag.FlagSet)) (cfg.App, error) {
	var conf cfg.App
	fs := flag.NewFlagSet(v.AppName+" "+cmd, flag.ExitOnError)
	cfg.Register(fs, &conf)
	if extra != nil {
		extra(fs)
	}
	_ = fs.Parse(args)

	cfg.FillFromEnv(fs, envPrefix, func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
	})

	if err := cfg.Validate(conf, needArtifact); err != nil {
		return conf, fmt.Errorf("config error: %w", err)
	}
	return conf, nil
}

func newLogger(conf cfg.App, component string) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", conf.LogLevel, err)
	}
	stl := lvl
	if conf.StacktraceLevel != "" {
		if stl, err = log.ParseLevel(conf.StacktraceLevel); err != nil {
			return nil, fmt.Errorf("invalid stacktrace level %q: %w", conf.StacktraceLevel, err)
		}
	}

	vi := v.Get()
	lg, err := log.New(log.Options{
		App:             vi.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		StacktraceLevel: stl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	return lg.With("component", component), nil
}

// metadataFlag collects repeated -metadata key=value pairs.
type metadataFlag map[string]string

func (m metadataFlag) String() string {
	pairs := make([]string, 0, len(m))
	for k, val := range m {
		pairs = append(pairs, k+"="+val)
	}
	return strings.Join(pairs, ",")
}

func (m metadataFlag) Set(s string) error {
	k, val, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("metadata must be key=value (got %q)", s)
	}
	m[k] = val
	return nil
}
