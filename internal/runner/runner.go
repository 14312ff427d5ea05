// Package runner invokes the hosted application's named commands.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"deployhook/pkg/cmdutil"
)

// DefaultBaseCommand is prepended to every command name.
const DefaultBaseCommand = "php artisan"

// Output is what a command produced once it ran to completion.
type Output struct {
	ExitCode int
	Text     string
}

// Runner runs a named command with parameters. A non-nil error means the
// command could not be executed at all; a non-zero exit code is not an error.
type Runner interface {
	Run(ctx context.Context, name string, params map[string]any) (Output, error)
}

// Options configures an ExecRunner.
type Options struct {
	// AppRoot is the working directory for every command.
	AppRoot string

	// BaseCommand is shell-quoted and split, e.g. "php artisan".
	BaseCommand string

	// Secrets are redacted from captured output.
	Secrets []string

	Logger *slog.Logger
}

// ExecRunner runs commands as child processes of the base command.
type ExecRunner struct {
	appRoot string
	base    []string
	secrets []string
	logger  *slog.Logger
}

// NewExecRunner creates an ExecRunner. The base command must parse into at
// least one word.
func NewExecRunner(opts Options) (*ExecRunner, error) {
	baseCommand := opts.BaseCommand
	if strings.TrimSpace(baseCommand) == "" {
		baseCommand = DefaultBaseCommand
	}

	base, err := cmdutil.ParseCommandString(baseCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid base command: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &ExecRunner{
		appRoot: opts.AppRoot,
		base:    base,
		secrets: opts.Secrets,
		logger:  logger,
	}, nil
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, params map[string]any) (Output, error) {
	if strings.TrimSpace(name) == "" {
		return Output{}, fmt.Errorf("empty command name")
	}

	argv := r.Argv(name, params)
	r.logger.Debug("running command", "command", cmdutil.FormatCommand(argv), "dir", r.appRoot)

	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: r.appRoot}, argv)
	if err != nil && !cmdutil.IsExitError(err) {
		return Output{}, fmt.Errorf("failed to run %s: %w", name, err)
	}

	text := cmdutil.SanitizeOutput(result.Output, r.secrets)
	return Output{
		ExitCode: result.ExitCode,
		Text:     strings.TrimSpace(string(text)),
	}, nil
}

// Argv returns the full argument vector for a command.
func (r *ExecRunner) Argv(name string, params map[string]any) []string {
	argv := make([]string, 0, len(r.base)+1+len(params))
	argv = append(argv, r.base...)
	argv = append(argv, name)
	return append(argv, RenderParameters(params)...)
}

// RenderParameters turns a parameter map into command-line arguments, in
// sorted key order. Keys starting with a dash are options: true renders as a
// bare flag, false and nil are omitted, anything else renders as --key=value.
// Other keys are positional arguments and render as their value.
func RenderParameters(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, key := range keys {
		value := params[key]

		if !strings.HasPrefix(key, "-") {
			if value != nil {
				args = append(args, fmt.Sprint(value))
			}
			continue
		}

		switch v := value.(type) {
		case nil:
		case bool:
			if v {
				args = append(args, key)
			}
		default:
			args = append(args, fmt.Sprintf("%s=%v", key, v))
		}
	}

	return args
}
