package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"binstrap/internal/app"
	"binstrap/internal/config"
	"binstrap/internal/ui"
	"binstrap/internal/version"
)

const (
	cmdRun     = "run"
	cmdStatus  = "status"
	cmdClean   = "clean"
	cmdVersion = "version"
)

// cliOptions is the parsed command line, kept separate from run for tests.
type cliOptions struct {
	command    string
	configPath string
	manifests  []string
	outputDir  string
	cacheDir   string
	platform   string
	workers    int
	logLevel   string
	assumeYes  bool
	plain      bool
	limit      int
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run executes the selected command and returns the process exit code.
func run(opts cliOptions) int {
	if opts.command == cmdVersion {
		fmt.Fprintln(stdOut, version.Full())
		return 0
	}

	settings, err := config.LoadSettings(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "failed to load settings: %v\n", err)
		return 1
	}
	if err := opts.apply(settings); err != nil {
		fmt.Fprintf(stdErr, "invalid flags: %v\n", err)
		return 1
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(stdErr, "invalid settings: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var appOpts []app.Option
	if opts.plain {
		appOpts = append(appOpts, app.WithLiveProgress(false))
	}
	application := app.New(settings, stdOut, appOpts...)
	defer application.Close()

	switch opts.command {
	case cmdStatus:
		if err := application.Status(ctx, opts.limit); err != nil {
			fmt.Fprintf(stdErr, "status failed: %v\n", err)
			return 1
		}
		return 0
	case cmdClean:
		var confirm func(string) (bool, error)
		if !opts.assumeYes {
			confirm = func(label string) (bool, error) {
				return ui.Confirm(label, os.Stdin, os.Stdout)
			}
		}
		if _, err := application.Clean(ctx, confirm); err != nil {
			fmt.Fprintf(stdErr, "clean failed: %v\n", err)
			return 1
		}
		return 0
	default:
		report, err := application.Bootstrap(ctx, opts.manifests)
		if err != nil {
			fmt.Fprintf(stdErr, "bootstrap failed: %v\n", err)
			return 1
		}
		if report.Failed() {
			return 1
		}
		return 0
	}
}

// apply overrides settings with the flags that were set.
func (o cliOptions) apply(s *config.Settings) error {
	if len(o.manifests) > 0 {
		s.Manifests = o.manifests
	}
	if o.outputDir != "" {
		abs, err := filepath.Abs(o.outputDir)
		if err != nil {
			return err
		}
		s.OutputDir = abs
	}
	if o.cacheDir != "" {
		abs, err := filepath.Abs(o.cacheDir)
		if err != nil {
			return err
		}
		if s.LedgerPath == filepath.Join(s.CacheDir, "ledger.db") {
			s.LedgerPath = filepath.Join(abs, "ledger.db")
		}
		s.CacheDir = abs
	}
	if o.platform != "" {
		s.Platform = o.platform
	}
	if o.workers > 0 {
		s.Workers = o.workers
	}
	if o.logLevel != "" {
		s.Log.Level = o.logLevel
	}
	return nil
}

// parseCLIFlags accepts `binstrap [flags] [command] [flags] [manifest...]`.
// The settings path falls back to BINSTRAP_CONFIG, then to the per-user file.
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("binstrap", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		opts      cliOptions
		manifests stringList
	)
	fs.StringVar(&opts.configPath, "config", "", "settings file (default $BINSTRAP_CONFIG or the per-user config)")
	fs.Var(&manifests, "manifest", "manifest file, repeatable; later files override earlier ones")
	fs.StringVar(&opts.outputDir, "output", "", "directory exposures are installed into")
	fs.StringVar(&opts.cacheDir, "cache", "", "download cache directory")
	fs.StringVar(&opts.platform, "platform", "", "platform key to install for (default: host)")
	fs.IntVar(&opts.workers, "workers", 0, "concurrent descriptors (default: min(32, CPUs+4))")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&opts.assumeYes, "yes", false, "do not ask before cleaning the cache")
	fs.BoolVar(&opts.plain, "plain", false, "print progress as plain lines")
	fs.IntVar(&opts.limit, "limit", 10, "runs listed by status")
	showVersion := fs.Bool("version", false, "print the version and exit")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("failed to parse arguments: %w", err)
	}

	rest := fs.Args()
	opts.command = cmdRun
	if len(rest) > 0 {
		switch rest[0] {
		case cmdRun, cmdStatus, cmdClean, cmdVersion:
			opts.command = rest[0]
			if err := fs.Parse(rest[1:]); err != nil {
				return cliOptions{}, fmt.Errorf("failed to parse arguments: %w", err)
			}
			rest = fs.Args()
		}
	}
	if *showVersion {
		opts.command = cmdVersion
	}

	if len(rest) > 0 && opts.command != cmdRun {
		return cliOptions{}, fmt.Errorf("%s takes no arguments: %s", opts.command, strings.Join(rest, " "))
	}
	opts.manifests = append([]string(manifests), rest...)

	if opts.configPath == "" {
		opts.configPath = os.Getenv("BINSTRAP_CONFIG")
	}
	if opts.configPath == "" {
		opts.configPath = config.DefaultSettingsPath()
	}
	return opts, nil
}

// stringList collects a repeatable string flag.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}
