package pipeline

import (
	"context"
	"fmt"
	"strings"

	"deployhook/internal/runner"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CacheCommands are run, in order, by the cache step.
var CacheCommands = []string{"config:cache", "route:cache", "view:cache", "event:cache"}

// MaintenanceRetrySeconds is the retry hint passed to the down command.
const MaintenanceRetrySeconds = 60

// Action is an in-process step backed by a collaborator, such as env sync.
type Action interface {
	Execute(ctx context.Context) StepResult
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) StepResult

// Execute implements Action.
func (f ActionFunc) Execute(ctx context.Context) StepResult { return f(ctx) }

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// MaintenanceSecret is passed to the down command as --secret when set.
	MaintenanceSecret string

	SyncEnv     Action
	StorageLink Action
}

// Executor resolves a single step into a StepResult. It never returns an
// error: every fault is reported and converted into a failed result.
type Executor struct {
	runner runner.Runner
	opts   ExecutorOptions
	faults FaultReporter
}

// NewExecutor creates an Executor.
func NewExecutor(r runner.Runner, opts ExecutorOptions, faults FaultReporter) *Executor {
	if faults == nil {
		faults = LogFaultReporter{}
	}
	return &Executor{runner: r, opts: opts, faults: faults}
}

// Execute runs one step.
func (e *Executor) Execute(ctx context.Context, step Step) StepResult {
	ctx, span := tracer.Start(ctx, "deploy.step")
	defer span.End()

	result := e.execute(ctx, step)

	span.SetAttributes(
		attribute.String("deploy.step", DisplayName(step)),
		attribute.Bool("deploy.success", result.Success),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Message)
	}
	return result
}

func (e *Executor) execute(ctx context.Context, step Step) StepResult {
	switch s := step.(type) {
	case Inline:
		return e.runInline(ctx, s)
	case Command:
		return e.RunCommand(ctx, s.Name, s.Parameters)
	case Named:
		return e.runNamed(ctx, string(s))
	default:
		return failedStep(InvalidStepName, "Pipeline step must be a named step, command, or inline function.")
	}
}

func (e *Executor) runNamed(ctx context.Context, name string) StepResult {
	if command, ok := strings.CutPrefix(name, ExternalCommandPrefix); ok {
		return e.RunCommand(ctx, command, nil)
	}

	switch name {
	case StepSyncEnv:
		return e.runAction(ctx, name, e.opts.SyncEnv)
	case StepMaintenanceDown:
		return e.MaintenanceDown(ctx)
	case StepOptimizeClear:
		return e.RunCommand(ctx, "optimize:clear", nil)
	case StepMigrate:
		return e.RunCommand(ctx, "migrate", map[string]any{"--force": true})
	case StepMigrateFresh:
		return e.RunCommand(ctx, "migrate:fresh", map[string]any{"--force": true})
	case StepCache:
		return e.RunCache(ctx)
	case StepQueueRestart:
		return e.RunCommand(ctx, "queue:restart", nil)
	case StepStorageLink:
		return e.runAction(ctx, name, e.opts.StorageLink)
	case StepMaintenanceUp:
		return e.RunCommand(ctx, "up", nil)
	case StepOptimize:
		return e.RunCommand(ctx, "optimize", nil)
	default:
		return failedStep(name, fmt.Sprintf("Unknown deploy step: %s", name))
	}
}

// RunCommand runs a named command through the runner and wraps the outcome.
func (e *Executor) RunCommand(ctx context.Context, name string, params map[string]any) (result StepResult) {
	if params == nil {
		params = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			e.faults.ReportFault(ctx, fmt.Errorf("command %s panicked: %v", name, r), "step", name)
			result = failedStep(name, "Command execution raised a fault.")
		}
	}()

	out, err := e.runner.Run(ctx, name, params)
	if err != nil {
		e.faults.ReportFault(ctx, err, "step", name)
		return failedStep(name, "Command execution raised a fault.")
	}

	data := map[string]any{
		"command":    name,
		"parameters": params,
		"exit_code":  out.ExitCode,
		"output":     out.Text,
	}

	if out.ExitCode == 0 {
		return Succeeded(fmt.Sprintf("Command [%s] executed.", name), data)
	}
	return Failed(fmt.Sprintf("Command [%s] failed.", name), data,
		fmt.Sprintf("Command [%s] exited with code %d.", name, out.ExitCode))
}

// MaintenanceDown puts the application into maintenance mode.
func (e *Executor) MaintenanceDown(ctx context.Context) StepResult {
	params := map[string]any{"--retry": MaintenanceRetrySeconds}
	if e.opts.MaintenanceSecret != "" {
		params["--secret"] = e.opts.MaintenanceSecret
	}
	return e.RunCommand(ctx, "down", params)
}

// RunCache runs every cache command, even after a failure, and merges the
// outcomes into one result.
func (e *Executor) RunCache(ctx context.Context) StepResult {
	commands := make(map[string]any, len(CacheCommands))
	var errs []string
	success := true

	for _, command := range CacheCommands {
		result := e.RunCommand(ctx, command, nil)
		commands[command] = result.Data
		if !result.Success {
			success = false
			errs = append(errs, result.Errors...)
		}
	}

	data := map[string]any{"commands": commands}
	if success {
		return Succeeded("Cache commands completed.", data)
	}
	return Failed("One or more cache commands failed.", data, errs...)
}

func (e *Executor) runAction(ctx context.Context, name string, action Action) (result StepResult) {
	if action == nil {
		return failedStep(name, fmt.Sprintf("Deploy step [%s] is not configured.", name))
	}

	defer func() {
		if r := recover(); r != nil {
			e.faults.ReportFault(ctx, fmt.Errorf("step %s panicked: %v", name, r), "step", name)
			result = failedStep(name, fmt.Sprintf("Deploy step [%s] raised a fault.", name))
		}
	}()

	return Normalize(action.Execute(ctx))
}

func (e *Executor) runInline(ctx context.Context, fn Inline) (result StepResult) {
	const invalidReturn = "Inline pipeline step must return bool or StepResult."

	if fn == nil {
		return failedStep(InlineStepName, invalidReturn)
	}

	defer func() {
		if r := recover(); r != nil {
			e.faults.ReportFault(ctx, fmt.Errorf("inline step panicked: %v", r), "step", InlineStepName)
			result = failedStep(InlineStepName, invalidReturn)
		}
	}()

	switch v := fn(ctx).(type) {
	case bool:
		if v {
			return Succeeded("Step completed.", nil)
		}
		return Failed("Step failed.", nil)
	case StepResult:
		return Normalize(v)
	case *StepResult:
		if v == nil {
			return failedStep(InlineStepName, invalidReturn)
		}
		return Normalize(*v)
	case map[string]any:
		if r, ok := normalizeMap(v); ok {
			return r
		}
	}

	return failedStep(InlineStepName, invalidReturn)
}

func failedStep(step, message string) StepResult {
	return Failed(message, map[string]any{"step": step})
}
