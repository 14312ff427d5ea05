package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"deployhook/internal/security"
)

// FaultReporter receives unexpected errors raised while executing steps.
// Reporting never fails and never interrupts the pipeline.
type FaultReporter interface {
	ReportFault(ctx context.Context, fault error, attrs ...any)
}

// LogFaultReporter reports faults as error-level log entries. A nil Logger
// reports to slog.Default().
type LogFaultReporter struct {
	Logger *slog.Logger
}

// ReportFault implements FaultReporter.
func (r LogFaultReporter) ReportFault(ctx context.Context, fault error, attrs ...any) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := append([]any{"error", fault}, attrs...)
	logger.ErrorContext(ctx, "deploy fault", args...)
}

// StepLogger records the outcome of each executed step.
type StepLogger interface {
	LogStep(ctx context.Context, step string, result StepResult) error
}

// SlogStepLogger writes step outcomes to a slog handler: info for successes,
// error for failures. Handler errors are returned to the caller.
type SlogStepLogger struct {
	handler slog.Handler
}

// NewSlogStepLogger creates a step logger on top of handler.
func NewSlogStepLogger(handler slog.Handler) *SlogStepLogger {
	return &SlogStepLogger{handler: handler}
}

// LogStep implements StepLogger.
func (l *SlogStepLogger) LogStep(ctx context.Context, step string, result StepResult) error {
	level := slog.LevelInfo
	msg := fmt.Sprintf("Deploy step [%s] completed.", step)
	if !result.Success {
		level = slog.LevelError
		msg = fmt.Sprintf("Deploy step [%s] failed.", step)
	}

	if !l.handler.Enabled(ctx, level) {
		return nil
	}

	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.AddAttrs(
		slog.String("step", step),
		slog.Any("data", result.Data),
	)
	if !result.Success {
		record.AddAttrs(slog.Any("errors", result.Errors))
	}

	return l.handler.Handle(ctx, record)
}

// ChannelLog is a JSON log channel backed by its own file.
type ChannelLog struct {
	Handler slog.Handler
	Path    string
	closer  io.Closer
}

// OpenChannelLog opens (or creates) <dir>/<channel>.log and returns a JSON
// handler tagged with the channel name.
func OpenChannelLog(dir, channel string) (*ChannelLog, error) {
	path := filepath.Join(dir, channel+".log")

	file, err := security.OpenSecureAppend(path, security.PermLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s log channel: %w", channel, err)
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelInfo}).
		WithAttrs([]slog.Attr{slog.String("channel", channel)})

	return &ChannelLog{Handler: handler, Path: path, closer: file}, nil
}

// Close closes the underlying file.
func (c *ChannelLog) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
