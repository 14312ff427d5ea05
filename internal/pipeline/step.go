package pipeline

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in step names.
const (
	StepSyncEnv         = "sync-env"
	StepMaintenanceDown = "maintenance-down"
	StepOptimizeClear   = "optimize-clear"
	StepMigrate         = "migrate"
	StepMigrateFresh    = "migrate-fresh"
	StepCache           = "cache"
	StepQueueRestart    = "queue-restart"
	StepStorageLink     = "storage-link"
	StepMaintenanceUp   = "maintenance-up"
	StepOptimize        = "optimize"

	// ExternalCommandPrefix runs the remainder of the name as a command.
	ExternalCommandPrefix = "external-command:"

	// InlineStepName is the display name of inline steps.
	InlineStepName = "closure"

	// InvalidStepName tags steps that are none of the known variants.
	InvalidStepName = "invalid-step"
)

// DefaultSteps is used when no steps are configured.
var DefaultSteps = []string{
	StepSyncEnv,
	StepMaintenanceDown,
	StepOptimizeClear,
	StepMigrate,
	StepCache,
	StepStorageLink,
	StepMaintenanceUp,
}

// Step is one unit of deployment work. The implementations are Named,
// Command and Inline; a nil Step is treated as invalid.
type Step interface {
	// DisplayName is the name recorded in run results and logs.
	DisplayName() string
	isStep()
}

// Named is a step from the built-in table, or an external-command: step.
type Named string

func (n Named) DisplayName() string { return string(n) }
func (Named) isStep()               {}

// Command runs an external command with parameters.
type Command struct {
	Name       string         `yaml:"command" json:"command"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

func (c Command) DisplayName() string { return c.Name }
func (Command) isStep()               {}

// Inline is an in-process step. It must return a bool, a StepResult (or
// pointer to one), or a map with a boolean "success" key.
type Inline func(ctx context.Context) any

func (Inline) DisplayName() string { return InlineStepName }
func (Inline) isStep()             {}

// DisplayName returns the display name of any step, including nil ones.
func DisplayName(step Step) string {
	if step == nil {
		return InlineStepName
	}
	return step.DisplayName()
}

// DisplayNames returns the display names of the given steps in order.
func DisplayNames(steps []Step) []string {
	names := make([]string, len(steps))
	for i, step := range steps {
		names[i] = DisplayName(step)
	}
	return names
}

// NamedSteps converts a list of step names into steps. Blank names are
// skipped.
func NamedSteps(names []string) []Step {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		steps = append(steps, Named(name))
	}
	return steps
}

// Steps is a list of steps that can be decoded from YAML. Scalars become
// Named steps, mappings with a command key become Command steps, and any
// other node becomes a nil (invalid) step.
type Steps []Step

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Steps) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("steps must be a list, got %s", nodeKind(node))
	}

	steps := make(Steps, 0, len(node.Content))
	for _, item := range node.Content {
		steps = append(steps, decodeStep(item))
	}

	*s = steps
	return nil
}

func decodeStep(node *yaml.Node) Step {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag != "!!str" || strings.TrimSpace(node.Value) == "" {
			return nil
		}
		return Named(strings.TrimSpace(node.Value))
	case yaml.MappingNode:
		var cmd Command
		if err := node.Decode(&cmd); err != nil || strings.TrimSpace(cmd.Name) == "" {
			return nil
		}
		cmd.Name = strings.TrimSpace(cmd.Name)
		return cmd
	default:
		return nil
	}
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.MappingNode:
		return "mapping"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "unknown"
	}
}
