package pipeline

import (
	"context"
	"log/slog"
)

// PipelineStarting is emitted before the first step runs.
type PipelineStarting struct {
	RunID    string
	Steps    []string
	ClientIP string
}

// StepCompleted is emitted after each executed step.
type StepCompleted struct {
	RunID  string
	Step   string
	Result StepResult
}

// PipelineCompleted is emitted once every step that will run has run.
type PipelineCompleted struct {
	RunID   string
	Success bool
	Steps   []StepRecord
}

// Observer receives pipeline lifecycle notifications. Implementations must
// not block for long; they run on the request goroutine.
type Observer interface {
	OnPipelineStarting(ctx context.Context, ev PipelineStarting)
	OnStepCompleted(ctx context.Context, ev StepCompleted)
	OnPipelineCompleted(ctx context.Context, ev PipelineCompleted)
}

// Observers fans notifications out to each observer in order.
type Observers []Observer

func (o Observers) OnPipelineStarting(ctx context.Context, ev PipelineStarting) {
	for _, obs := range o {
		obs.OnPipelineStarting(ctx, ev)
	}
}

func (o Observers) OnStepCompleted(ctx context.Context, ev StepCompleted) {
	for _, obs := range o {
		obs.OnStepCompleted(ctx, ev)
	}
}

func (o Observers) OnPipelineCompleted(ctx context.Context, ev PipelineCompleted) {
	for _, obs := range o {
		obs.OnPipelineCompleted(ctx, ev)
	}
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) OnPipelineStarting(context.Context, PipelineStarting)   {}
func (NopObserver) OnStepCompleted(context.Context, StepCompleted)         {}
func (NopObserver) OnPipelineCompleted(context.Context, PipelineCompleted) {}

// LogObserver writes lifecycle notifications to a logger. A nil Logger
// writes to slog.Default().
type LogObserver struct {
	Logger *slog.Logger
}

func (l LogObserver) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l LogObserver) OnPipelineStarting(ctx context.Context, ev PipelineStarting) {
	l.logger().InfoContext(ctx, "deploy starting", "run_id", ev.RunID, "steps", ev.Steps, "ip", ev.ClientIP)
}

func (l LogObserver) OnStepCompleted(ctx context.Context, ev StepCompleted) {
	l.logger().DebugContext(ctx, "deploy step completed", "run_id", ev.RunID, "step", ev.Step, "success", ev.Result.Success)
}

func (l LogObserver) OnPipelineCompleted(ctx context.Context, ev PipelineCompleted) {
	level := slog.LevelInfo
	if !ev.Success {
		level = slog.LevelError
	}
	l.logger().Log(ctx, level, "deploy completed", "run_id", ev.RunID, "success", ev.Success, "steps", len(ev.Steps))
}
