package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/entrhq/uitest/pkg/artifact"
	"github.com/entrhq/uitest/pkg/browser"
	"github.com/entrhq/uitest/pkg/logging"
)

var tracer = otel.Tracer("github.com/entrhq/uitest/pkg/scenario")

// RecoveryCounter reports how many corrupt credential blobs were discarded.
// *vault.Vault implements it.
type RecoveryCounter interface {
	Recoveries() int64
}

// Options configures a Runner.
type Options struct {
	Manager  *browser.Manager
	Capturer *artifact.Capturer

	// Filter selects scenarios; nil runs all of them
	Filter *Filter

	// Parallel bounds how many scenarios run at once
	Parallel int

	// ResultsDir is where scripted screenshots go
	ResultsDir string

	Vault RecoveryCounter

	// Console receives progress lines; nil prints nothing
	Console *logging.Console
	Logger  *logging.Logger
}

// Runner executes scenarios and builds the run report.
type Runner struct {
	manager    *browser.Manager
	capturer   *artifact.Capturer
	filter     *Filter
	parallel   int
	resultsDir string
	vault      RecoveryCounter
	console    *logging.Console
	logger     *logging.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	parallel := opts.Parallel
	if parallel < 1 {
		parallel = 1
	}
	return &Runner{
		manager:    opts.Manager,
		capturer:   opts.Capturer,
		filter:     opts.Filter,
		parallel:   parallel,
		resultsDir: opts.ResultsDir,
		vault:      opts.Vault,
		console:    opts.Console,
		logger:     opts.Logger,
	}
}

// Run executes the scenarios that pass the filter, at most Parallel at a
// time, and returns the outcomes in input order. Filtered-out scenarios and
// scenarios not started before ctx is cancelled are reported as skipped.
func (rn *Runner) Run(ctx context.Context, scenarios ...Scenario) []*Outcome {
	ctx, span := tracer.Start(ctx, "run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("scenarios.total", len(scenarios)),
		attribute.Int("runner.parallel", rn.parallel),
	)
	if rn.resultsDir != "" {
		ctx = WithResultsDir(ctx, rn.resultsDir)
	}

	outcomes := make([]*Outcome, len(scenarios))
	p := pool.New().WithMaxGoroutines(rn.parallel)
	for i, sc := range scenarios {
		i, sc := i, sc
		if !rn.filter.Match(sc) {
			outcomes[i] = skipped(sc, nil)
			continue
		}
		p.Go(func() {
			outcomes[i] = rn.runOne(ctx, sc)
		})
	}
	p.Wait()
	return outcomes
}

func skipped(sc Scenario, reason error) *Outcome {
	now := time.Now()
	return &Outcome{
		Title:     sc.Title,
		Tags:      sc.Tags,
		Status:    StatusSkipped,
		Err:       reason,
		StartTime: now,
		EndTime:   now,
	}
}

func (rn *Runner) runOne(ctx context.Context, sc Scenario) *Outcome {
	if err := ctx.Err(); err != nil {
		return skipped(sc, err)
	}
	if sc.Run == nil {
		return skipped(sc, errors.New("scenario has no steps"))
	}

	ctx, span := tracer.Start(ctx, "scenario", trace.WithAttributes(
		attribute.String("scenario.title", sc.Title),
		attribute.StringSlice("scenario.tags", sc.Tags),
	))
	defer span.End()

	rn.console.Scenario(sc.Title)
	rn.logger.Infof("scenario %q started", sc.Title)

	r := &run{
		scenario: sc,
		outcome: &Outcome{
			Title:     sc.Title,
			Tags:      sc.Tags,
			StartTime: time.Now(),
		},
	}
	rn.execute(ctx, r)
	out := r.outcome
	out.EndTime = time.Now()

	span.SetAttributes(
		attribute.String("scenario.status", string(out.Status)),
		attribute.String("session.id", out.SessionID),
	)

	switch out.Status {
	case StatusPassed:
		rn.console.Passf("%s (%s)", sc.Title, out.Duration().Round(time.Millisecond))
		rn.logger.Infof("scenario %q passed in %s", sc.Title, out.Duration())
	default:
		rn.console.Failf("%s: %v", sc.Title, out.Err)
		rn.logger.Errorf("scenario %q failed: %v", sc.Title, out.Err)
		for _, a := range out.Artifacts {
			rn.console.Verbosef("%s saved to %s", a.Kind, a.Path)
		}
	}
	if out.TeardownErr != nil {
		rn.console.Warningf("teardown of %q incomplete: %v", sc.Title, out.TeardownErr)
	}
	return out
}

// Report summarizes outcomes for the report writer.
func (rn *Runner) Report(runID string, start time.Time, outcomes []*Outcome) *artifact.Report {
	end := time.Now()
	cfg := rn.managerConfig()
	report := &artifact.Report{
		RunID:     runID,
		Browser:   string(cfg.Family),
		Headless:  cfg.Headless,
		BaseURL:   cfg.BaseURL,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Total:     len(outcomes),
	}
	if rn.vault != nil {
		report.VaultRecoveries = rn.vault.Recoveries()
	}
	for _, out := range outcomes {
		switch out.Status {
		case StatusPassed:
			report.Passed++
		case StatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
		report.Scenarios = append(report.Scenarios, out.result())
	}
	return report
}

func (rn *Runner) managerConfig() browser.ManagerConfig {
	if rn.manager == nil {
		return browser.ManagerConfig{}
	}
	return rn.manager.Config()
}
