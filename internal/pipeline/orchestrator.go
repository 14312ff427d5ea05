// Package pipeline runs ordered deployment steps and aggregates their
// results.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("deployhook/pipeline")

// StepRecord is one executed step in a run.
type StepRecord struct {
	Step   string     `json:"step"`
	Result StepResult `json:"result"`
}

// Run is the outcome of one pipeline execution. Steps skipped because of
// stop-on-failure are not listed.
type Run struct {
	ID      string
	Success bool
	Steps   []StepRecord
}

// Options configures an Orchestrator.
type Options struct {
	StopOnFailure bool
}

// Orchestrator runs steps sequentially through an Executor.
type Orchestrator struct {
	executor *Executor
	opts     Options
	observer Observer
	logger   StepLogger
	faults   FaultReporter
}

// NewOrchestrator creates an Orchestrator. A nil observer or step logger is
// replaced by a no-op.
func NewOrchestrator(executor *Executor, opts Options, observer Observer, logger StepLogger, faults FaultReporter) *Orchestrator {
	if observer == nil {
		observer = NopObserver{}
	}
	if faults == nil {
		faults = LogFaultReporter{}
	}
	return &Orchestrator{
		executor: executor,
		opts:     opts,
		observer: observer,
		logger:   logger,
		faults:   faults,
	}
}

// Executor returns the executor used for each step.
func (o *Orchestrator) Executor() *Executor {
	return o.executor
}

// Run executes steps in order. An empty list runs DefaultSteps. Cancellation
// of ctx is not propagated to the steps.
func (o *Orchestrator) Run(ctx context.Context, steps []Step, clientIP string) *Run {
	if len(steps) == 0 {
		steps = NamedSteps(DefaultSteps)
	}

	ctx = context.WithoutCancel(ctx)
	run := &Run{ID: uuid.NewString(), Success: true}

	ctx, span := tracer.Start(ctx, "deploy.pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("deploy.run_id", run.ID),
		attribute.Int("deploy.steps", len(steps)),
	)

	o.notify(ctx, "", func() {
		o.observer.OnPipelineStarting(ctx, PipelineStarting{
			RunID:    run.ID,
			Steps:    DisplayNames(steps),
			ClientIP: clientIP,
		})
	})

	for _, step := range steps {
		name := DisplayName(step)
		result := o.executor.Execute(ctx, step)
		run.Steps = append(run.Steps, StepRecord{Step: name, Result: result})

		o.notify(ctx, name, func() {
			o.observer.OnStepCompleted(ctx, StepCompleted{RunID: run.ID, Step: name, Result: result})
		})
		o.logStep(ctx, name, result)

		if !result.Success {
			run.Success = false
			if o.opts.StopOnFailure {
				break
			}
		}
	}

	if !run.Success {
		span.SetStatus(codes.Error, "deploy step failed")
	}

	o.notify(ctx, "", func() {
		o.observer.OnPipelineCompleted(ctx, PipelineCompleted{
			RunID:   run.ID,
			Success: run.Success,
			Steps:   run.Steps,
		})
	})

	return run
}

// notify delivers one lifecycle notification. Observer panics are reported
// as faults and the run carries on.
func (o *Orchestrator) notify(ctx context.Context, step string, deliver func()) {
	defer func() {
		if r := recover(); r != nil {
			attrs := []any{}
			if step != "" {
				attrs = append(attrs, "step", step)
			}
			o.faults.ReportFault(ctx, fmt.Errorf("observer panicked: %v", r), attrs...)
		}
	}()

	deliver()
}

func (o *Orchestrator) logStep(ctx context.Context, name string, result StepResult) {
	if o.logger == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			o.faults.ReportFault(ctx, fmt.Errorf("step logger panicked: %v", r), "step", name)
		}
	}()

	if err := o.logger.LogStep(ctx, name, result); err != nil {
		o.faults.ReportFault(ctx, fmt.Errorf("failed to log step %s: %w", name, err), "step", name)
	}
}
