package scenario

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/entrhq/uitest/pkg/browser"
)

// Pipeline stage names.
const (
	StageSetup    = "setup"
	StageSteps    = "steps"
	StageTeardown = "teardown"
	StageCapture  = "capture"
)

// run is the mutable state of one scenario passing through the pipeline.
type run struct {
	scenario Scenario
	outcome  *Outcome
	session  *browser.Session
}

// stage is one pipeline step. Stages after a failure are skipped unless
// always is set.
type stage struct {
	name   string
	always bool
	exec   func(ctx context.Context, r *run) error
}

func (rn *Runner) pipeline() []stage {
	return []stage{
		{name: StageSetup, exec: rn.setup},
		{name: StageSteps, exec: rn.steps},
		{name: StageTeardown, always: true, exec: rn.teardown},
	}
}

func (rn *Runner) execute(ctx context.Context, r *run) {
	for _, st := range rn.pipeline() {
		if r.outcome.Failed() && !st.always {
			continue
		}
		stageCtx, span := tracer.Start(ctx, "scenario."+st.name)
		err := st.exec(stageCtx, r)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (rn *Runner) setup(ctx context.Context, r *run) error {
	session, err := rn.manager.Setup(ctx)
	if err != nil {
		err = fmt.Errorf("session setup failed: %w", err)
		r.outcome.fail(err)
		return err
	}
	r.session = session
	r.outcome.SessionID = session.ID
	r.outcome.StateAttached = session.StateAttached
	return nil
}

func (rn *Runner) steps(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			rn.logger.Errorf("scenario %q panicked: %v\n%s", r.scenario.Title, p, debug.Stack())
			err = fmt.Errorf("scenario panicked: %v", p)
		}
		if err != nil {
			r.outcome.fail(err)
		} else {
			r.outcome.Status = StatusPassed
		}
	}()

	actions, err := browser.NewActions(r.session, browser.WithLogger(rn.logger.With("actions")))
	if err != nil {
		return err
	}
	return r.scenario.Run(ctx, actions)
}

// teardown releases the session. Failure capture runs as a teardown stage
// after credential state is saved and before the page closes.
func (rn *Runner) teardown(ctx context.Context, r *run) error {
	if r.session == nil {
		return nil
	}
	capture := browser.TeardownStage{
		Name: StageCapture,
		Run: func(ctx context.Context, s *browser.Session) error {
			if rn.capturer == nil || !r.outcome.Failed() {
				return nil
			}
			ctx, span := tracer.Start(ctx, "scenario."+StageCapture)
			defer span.End()
			if shot, ok := rn.capturer.Capture(ctx, r.outcome, s.Page()); ok {
				span.SetAttributes(attribute.String("artifact.path", shot.Path))
				base := strings.TrimSuffix(shot.Path, filepath.Ext(shot.Path))
				for _, a := range rn.capturer.Registry().ForScenario(r.outcome.Title) {
					if strings.TrimSuffix(a.Path, filepath.Ext(a.Path)) == base {
						r.outcome.Artifacts = append(r.outcome.Artifacts, a)
					}
				}
			}
			return nil
		},
	}

	err := rn.manager.Teardown(ctx, r.session, capture)
	if err != nil {
		r.outcome.TeardownErr = err
	}
	return err
}
