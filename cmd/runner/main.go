// Command runner executes one training session and writes its event log and
// checkpoint metadata.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"training-orchestrator/config"
	"training-orchestrator/core/executor"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/core/spec"
	"training-orchestrator/core/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

type options struct {
	configPath string
	logFile    string
	weights    string
	devices    string
	profile    string
}

func main() {
	os.Exit(run0(os.Args[1:], os.Stderr))
}

func run0(args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	_ = godotenv.Load()
	cfg, err := config.LoadRunner()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts, logger); err != nil {
		logger.Error("training run failed", "error", err)
		return 1
	}
	return 0
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the run configuration (required)")
	fs.StringVar(&opts.logFile, "log-file", "", "path of the append-only event log (required)")
	fs.StringVar(&opts.weights, "weights", "", "optional pretrained weights path")
	fs.StringVar(&opts.devices, "devices", "", "comma-separated device identifiers")
	fs.StringVar(&opts.profile, "profile", "prod", "profile tag recorded in the event log")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.configPath == "" {
		return opts, errors.New("--config is required")
	}
	if opts.logFile == "" {
		return opts, errors.New("--log-file is required")
	}
	return opts, nil
}

func run(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) error {
	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	trainingCfg, err := spec.LoadTrainingConfig(opts.configPath)
	if err != nil {
		return err
	}
	metrics, err := monitoring.NewSessionMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	rc := executor.NewRunnerContext(trainingCfg, executor.ParseDevices(opts.devices),
		opts.weights, opts.profile, opts.logFile)
	session, err := executor.NewTrainingSession(rc,
		executor.WithLogger(logger),
		executor.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	return session.Run(ctx)
}
