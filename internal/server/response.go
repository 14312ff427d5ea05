package server

import (
	"net/http"

	"deployhook/internal/pipeline"
)

// Response messages.
const (
	MessagePipelineCompleted = "Deployment pipeline completed."
	MessagePipelineFailed    = "Deployment pipeline failed."
	ErrorPipelineFailed      = "One or more deploy steps failed."

	MessageNotFound        = "Not Found"
	MessageForbidden       = "Forbidden"
	MessageTooManyRequests = "Too many requests"
	MessageHealthy         = "OK"
)

// Envelope is the JSON body of every deploy response.
type Envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Errors  []string       `json:"errors"`
}

// NewEnvelope builds an envelope with non-nil data and errors.
func NewEnvelope(success bool, message string, data map[string]any, errs ...string) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	if errs == nil {
		errs = []string{}
	}
	return Envelope{Success: success, Message: message, Data: data, Errors: errs}
}

// FromRun maps a pipeline run to its envelope and status.
func FromRun(run *pipeline.Run) (int, Envelope) {
	steps := run.Steps
	if steps == nil {
		steps = []pipeline.StepRecord{}
	}
	data := map[string]any{
		"run_id": run.ID,
		"steps":  steps,
	}

	if !run.Success {
		return http.StatusInternalServerError, NewEnvelope(false, MessagePipelineFailed, data, ErrorPipelineFailed)
	}
	return http.StatusOK, NewEnvelope(true, MessagePipelineCompleted, data)
}

// FromStep maps a single step result to its envelope and status. label is
// the endpoint name reported in data.step.
func FromStep(label string, result pipeline.StepResult) (int, Envelope) {
	result = pipeline.Normalize(result)
	data := map[string]any{
		"step":   label,
		"result": result.Data,
	}

	if !result.Success {
		return http.StatusInternalServerError, NewEnvelope(false, result.Message, data, result.Errors...)
	}
	return http.StatusOK, NewEnvelope(true, result.Message, data)
}

// FromDenial maps a gate denial status to its envelope. Only the status
// distinguishes the failed check.
func FromDenial(status int) Envelope {
	switch status {
	case http.StatusForbidden:
		return NewEnvelope(false, MessageForbidden, nil, MessageForbidden)
	case http.StatusTooManyRequests:
		return NewEnvelope(false, MessageTooManyRequests, nil, MessageTooManyRequests)
	default:
		return NewEnvelope(false, MessageNotFound, nil, MessageNotFound)
	}
}
