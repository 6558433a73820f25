// Package main provides the uitest command line: it runs YAML step scripts
// against a browser, caches login state between runs and writes a results
// report suitable for CI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/browser"
	"github.com/entrhq/uitest/pkg/config"
	"github.com/entrhq/uitest/pkg/logging"
	"github.com/entrhq/uitest/pkg/scenario"
	"github.com/entrhq/uitest/pkg/vault"
)

const version = "0.1.0"

// errScenariosFailed is returned when the run completed but scenarios failed.
var errScenariosFailed = errors.New("one or more scenarios failed")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down gracefully...")
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(ctx, os.Args[2:])
	case "install":
		err = installCommand(os.Args[2:])
	case "vault":
		err = vaultCommand(ctx, os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("uitest v%s\n", version)
	case "help", "-h", "-help", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		cancel()
		os.Exit(2)
	}
	cancel()

	if err != nil {
		if !errors.Is(err, errScenariosFailed) {
			log.Printf("uitest: %v", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "uitest - browser end-to-end scenario runner\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  uitest run [options] <script.yaml|dir>...\n")
	fmt.Fprintf(os.Stderr, "  uitest install [-browser chromium]\n")
	fmt.Fprintf(os.Stderr, "  uitest vault status|show|clear [-config file] [-identity name]\n")
	fmt.Fprintf(os.Stderr, "  uitest version\n\n")
	fmt.Fprintf(os.Stderr, "Environment:\n")
	fmt.Fprintf(os.Stderr, "  %s, %s, %s, %s, %s, %s\n\n",
		config.EnvBrowser, config.EnvHeadless, config.EnvBaseURL, config.EnvTimeout, config.EnvResultsDir, config.EnvIdentity)
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  # Run every script in a directory headless\n")
	fmt.Fprintf(os.Stderr, "  HEADLESS=true uitest run scenarios/\n\n")
	fmt.Fprintf(os.Stderr, "  # Only smoke scenarios, four at a time\n")
	fmt.Fprintf(os.Stderr, "  uitest run -tag smoke -parallel 4 scenarios/\n\n")
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// runFlags holds the run command's flag values.
type runFlags struct {
	configFile string
	browser    string
	headless   bool
	baseURL    string
	filter     string
	tags       stringList
	parallel   int
	resultsDir string
	identity   string
	noVault    bool
	install    bool
	trace      bool
	verbosity  string
}

func runCommand(ctx context.Context, args []string) error {
	var f runFlags
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&f.browser, "browser", "", "Browser family: chromium, firefox or webkit")
	fs.BoolVar(&f.headless, "headless", false, "Run without a browser window")
	fs.StringVar(&f.baseURL, "base-url", "", "Base URL relative navigation resolves against")
	fs.StringVar(&f.filter, "filter", "", "Glob matched against scenario titles")
	fs.Var(&f.tags, "tag", "Tag glob; repeatable, a scenario runs if any tag matches")
	fs.IntVar(&f.parallel, "parallel", 0, "Scenarios run at once")
	fs.StringVar(&f.resultsDir, "results", "", "Results directory")
	fs.StringVar(&f.identity, "identity", "", "Cached login identity")
	fs.BoolVar(&f.noVault, "no-vault", false, "Disable credential state caching")
	fs.BoolVar(&f.install, "install", false, "Install the driver and browser before running")
	fs.BoolVar(&f.trace, "trace", false, "Print lifecycle spans to stdout")
	fs.StringVar(&f.verbosity, "verbosity", "", "Console output: quiet, normal or verbose")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no script paths given")
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	applyRunFlags(fs, &f, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	scenarios, err := scenario.LoadScripts(fs.Args()...)
	if err != nil {
		return err
	}

	if cfg.Logging.Dir != "" {
		logging.SetDirectory(cfg.Logging.Dir)
	}
	logger, err := logging.NewLogger("uitest")
	if err != nil {
		log.Printf("Warning: %v", err)
	}
	defer logger.Close()

	level, err := logging.ParseLevel(cfg.Logging.Verbosity)
	if err != nil {
		return err
	}
	console := logging.NewConsole(level)

	if cfg.Runner.Trace {
		shutdown, err := scenario.SetupTracing("uitest", version, logging.RunID(), nil)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warnf("failed to flush traces: %v", err)
			}
		}()
	}

	managerCfg, err := browser.ManagerConfigFrom(cfg)
	if err != nil {
		return err
	}
	drivers, err := browser.PlaywrightDrivers(browser.DriverOptions{
		Install:  cfg.InstallDriver,
		Browsers: []browser.Family{managerCfg.Family},
		Logger:   logger.With("driver"),
	})
	if err != nil {
		return err
	}

	var store browser.CredentialStore
	var recoveries scenario.RecoveryCounter
	if !cfg.Vault.Disabled {
		v, err := openVault(cfg, logger)
		if err != nil {
			return err
		}
		store, recoveries = v, v
	}

	filter, err := scenario.NewFilter(cfg.Runner.Filter, cfg.Runner.Tags)
	if err != nil {
		return err
	}

	runner := scenario.NewRunner(scenario.Options{
		Manager:    browser.NewManager(drivers, managerCfg, store, logger.With("browser")),
		Capturer:   artifact.NewCapturer(cfg.ResultsDir, artifact.NewRegistry(), logger.With("artifact")),
		Filter:     filter,
		Parallel:   cfg.Runner.Parallel,
		ResultsDir: cfg.ResultsDir,
		Vault:      recoveries,
		Console:    console,
		Logger:     logger.With("scenario"),
	})

	console.Header(fmt.Sprintf("uitest v%s  %s  %d scenario(s)", version, managerCfg.Family, len(scenarios)))
	start := time.Now()
	outcomes := runner.Run(ctx, scenarios...)
	report := runner.Report(logging.RunID(), start, outcomes)

	if err := artifact.NewReportWriter(cfg.ResultsDir).WriteAll(report); err != nil {
		return err
	}
	console.Summaryf("%d passed, %d failed, %d skipped in %s (results: %s)",
		report.Passed, report.Failed, report.Skipped, report.Duration.Round(time.Millisecond), cfg.ResultsDir)
	if report.VaultRecoveries > 0 {
		console.Warningf("cached login state was unreadable and discarded %d time(s)", report.VaultRecoveries)
	}

	if !report.Success() {
		return errScenariosFailed
	}
	return nil
}

// applyRunFlags overlays explicitly set flags onto cfg; flags win over the
// file and the environment.
func applyRunFlags(fs *flag.FlagSet, f *runFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "browser":
			cfg.Browser = strings.ToLower(f.browser)
		case "headless":
			cfg.Headless = f.headless
		case "base-url":
			cfg.BaseURL = f.baseURL
		case "filter":
			cfg.Runner.Filter = f.filter
		case "tag":
			cfg.Runner.Tags = f.tags
		case "parallel":
			cfg.Runner.Parallel = f.parallel
		case "results":
			cfg.ResultsDir = f.resultsDir
		case "identity":
			cfg.Vault.Identity = f.identity
		case "no-vault":
			cfg.Vault.Disabled = f.noVault
		case "install":
			cfg.InstallDriver = f.install
		case "trace":
			cfg.Runner.Trace = f.trace
		case "verbosity":
			cfg.Logging.Verbosity = f.verbosity
		}
	})
}

func openVault(cfg *config.Config, logger *logging.Logger) (*vault.Vault, error) {
	dir, err := cfg.VaultDir()
	if err != nil {
		return nil, err
	}
	return vault.New(vault.Options{
		Dir:         dir,
		Identity:    cfg.Vault.Identity,
		Logger:      logger.With("vault"),
		LockTimeout: cfg.Vault.LockTimeout,
	})
}

func installCommand(args []string) error {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	name := fs.String("browser", "", "Browser family to install; empty installs all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	opts := browser.DriverOptions{}
	if *name != "" {
		family, err := browser.ParseFamily(*name)
		if err != nil {
			return err
		}
		opts.Browsers = []browser.Family{family}
	}
	if err := browser.InstallDriver(opts); err != nil {
		return err
	}
	fmt.Println("playwright driver and browsers installed")
	return nil
}

func vaultCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("vault requires a subcommand: status, show or clear")
	}
	sub := args[0]

	fs := flag.NewFlagSet("vault "+sub, flag.ExitOnError)
	configFile := fs.String("config", "", "Path to configuration file (YAML)")
	identity := fs.String("identity", "", "Cached login identity")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if *identity != "" {
		cfg.Vault.Identity = *identity
	}
	v, err := openVault(cfg, nil)
	if err != nil {
		return err
	}

	switch sub {
	case "status":
		status := v.Status()
		fmt.Printf("identity: %s\nstate:    %s\npath:     %s\n", status.Identity, status.State, status.Path)
		if status.State == vault.Present {
			fmt.Printf("size:     %d bytes\nsaved:    %s\n", status.Size, status.ModTime.Format(time.RFC3339))
		}
		return nil
	case "show":
		state, err := v.Inspect(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("identity: %s\ncookies:  %d\norigins:  %d\n", v.Identity(), len(state.Cookies), len(state.Origins))
		for _, c := range state.Cookies {
			fmt.Printf("  cookie %s (domain %s)\n", c.Name, c.Domain)
		}
		for _, o := range state.Origins {
			fmt.Printf("  origin %s (%d local storage keys)\n", o.Origin, len(o.LocalStorage))
		}
		return nil
	case "clear":
		if err := v.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("cleared cached state for %s\n", v.Identity())
		return nil
	default:
		return fmt.Errorf("unknown vault subcommand %q", sub)
	}
}
