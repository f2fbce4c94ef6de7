// Command trn launches training runs and inspects the run registry.
//
//	trn run --config run.json [--weights w] [--profile p] [--devices cuda:0] [--cpu-only] [--device-count n]
//	trn resume --checkpoint ckpt.meta.json --config run.json
//	trn list [--limit 10]
//	trn status <job_id>
package main

import (
	"context"
	"encoding/json"
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
	"training-orchestrator/core/models"
	"training-orchestrator/core/monitoring"
	"training-orchestrator/core/repository"
	"training-orchestrator/core/resource_manager"
	"training-orchestrator/core/scheduler"
	"training-orchestrator/core/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

// BusSource is the source field of published job events
const BusSource = "trn"

const usage = "usage: trn <run|resume|list|status> [flags]"

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run0(os.Args[1:], os.Stdout, os.Stderr))
}

func run0(args []string, stdout, stderr io.Writer) int {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a := &app{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}
	err = a.dispatch(ctx, args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		logger.Error("trn failed", "error", err)
		return 1
	}
	return 0
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(a.stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "run":
		return a.runCmd(ctx, args[1:], false)
	case "resume":
		return a.runCmd(ctx, args[1:], true)
	case "list":
		return a.listCmd(ctx, args[1:])
	case "status":
		return a.statusCmd(ctx, args[1:])
	default:
		fmt.Fprintln(a.stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

// registryFlags binds the flags shared by every command
func (a *app) registryFlags(fs *flag.FlagSet) *string {
	return fs.String("manifest", a.cfg.ManifestPath, "JSONL run manifest, used when DATABASE_URL is unset")
}

func (a *app) openStore(ctx context.Context, manifest string) (repository.RunStore, func() error, error) {
	return repository.OpenRunStore(ctx, a.cfg.DatabaseDriver, a.cfg.DatabaseURL, manifest)
}

func (a *app) runCmd(ctx context.Context, args []string, resume bool) error {
	name := "run"
	if resume {
		name = "resume"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	manifest := a.registryFlags(fs)
	var (
		req        scheduler.RunRequest
		devices    string
		eventLog   string
		checkpoint string
	)
	fs.StringVar(&req.ConfigPath, "config", "", "path to the run configuration (required)")
	fs.StringVar(&req.Profile, "profile", "", "profile tag (default prod, or resume)")
	fs.StringVar(&devices, "devices", "", "explicit comma-separated device list")
	fs.StringVar(&req.LogDir, "log-dir", a.cfg.LogDir, "root directory of dated run logs")
	fs.StringVar(&eventLog, "event-log", a.cfg.EventLogPath, "JSONL event bus file; empty disables publishing")
	if resume {
		fs.StringVar(&checkpoint, "checkpoint", "", "checkpoint metadata to resume from (required)")
	} else {
		fs.StringVar(&req.WeightsPath, "weights", "", "optional pretrained weights path")
		fs.BoolVar(&req.CPUOnly, "cpu-only", false, "allocate CPU devices only")
		fs.IntVar(&req.DeviceCount, "device-count", 0, "number of devices to allocate (0 = all)")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if req.ConfigPath == "" {
		return errors.New("--config is required")
	}
	if resume && checkpoint == "" {
		return errors.New("--checkpoint is required")
	}
	if devices != "" {
		req.Devices = executor.ParseDevices(devices)
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    a.cfg.OTELEndpoint,
		Insecure:    a.cfg.OTELInsecure,
		ServiceName: a.cfg.ServiceName,
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	store, closeStore, err := a.openStore(ctx, *manifest)
	if err != nil {
		return err
	}
	defer closeStore()

	var publisher monitoring.Publisher = monitoring.NopPublisher{}
	if eventLog != "" {
		if publisher, err = monitoring.NewFilePublisher(eventLog, BusSource); err != nil {
			return err
		}
	}
	metrics, err := monitoring.NewSessionMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	launcher := scheduler.NewLauncher(store, resource_manager.Autodetect(ctx, a.logger), publisher, a.logger,
		executor.WithMetrics(metrics))

	var run *models.Run
	if resume {
		run, err = launcher.Resume(ctx, checkpoint, req)
	} else {
		run, err = launcher.Submit(ctx, req)
	}
	if run != nil {
		if perr := a.printJSON(run); perr != nil {
			return perr
		}
	}
	return err
}

func (a *app) listCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	manifest := a.registryFlags(fs)
	limit := fs.Int("limit", 10, "number of entries to display")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx, *manifest)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	for _, run := range runs {
		fmt.Fprintf(a.stdout, "%s | %s | %s | %s | %v\n",
			run.ID, run.Profile, run.Status, run.SubmittedAt.Format("2006-01-02T15:04:05Z07:00"), run.Devices)
	}
	return nil
}

func (a *app) statusCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	manifest := a.registryFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: trn status <job_id>")
	}
	id := fs.Arg(0)

	store, closeStore, err := a.openStore(ctx, *manifest)
	if err != nil {
		return err
	}
	defer closeStore()

	run, err := store.GetRun(ctx, id)
	if errors.Is(err, models.ErrRunNotFound) {
		fmt.Fprintf(a.stdout, "job %s not found\n", id)
		return nil
	}
	if err != nil {
		return err
	}
	return a.printJSON(run)
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
