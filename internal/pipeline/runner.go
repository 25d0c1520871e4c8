package pipeline

import (
	"context"

	"github.com/savaki/tf-provisioner/internal/models"
)

// RunResult summarizes an in-process run of all three stages. Stage outputs
// are nil for stages that never ran.
type RunResult struct {
	RequestID string
	State     State
	Convert   *models.ConvertOutput
	Validate  *models.ValidateOutput
	Apply     *models.ApplyOutput
	Failure   *Failure
}

// Err returns the failure, if any, as an error
func (r RunResult) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure
}

// Runner drives Convert, Validate and Apply in order for one request. A
// stage only runs when the previous stage succeeded.
type Runner struct {
	pipeline *Pipeline
}

func NewRunner(p *Pipeline) *Runner {
	return &Runner{pipeline: p}
}

// Run executes the pipeline for request. requestID may be empty, in which
// case Convert mints one.
func (r *Runner) Run(ctx context.Context, request, requestID string) RunResult {
	result := RunResult{
		RequestID: requestID,
		State:     StateConverting,
	}

	converted := r.pipeline.Convert(ctx, models.ConvertInput{Input: request, RequestID: requestID})
	result.RequestID = converted.Value.RequestID
	result.Convert = &converted.Value
	result.State = result.State.Next(converted.OK())
	if !converted.OK() {
		result.Failure = converted.Failure
		return result
	}

	validated := r.pipeline.Validate(ctx, converted.Value.ValidateInput())
	result.Validate = &validated.Value
	result.State = result.State.Next(validated.OK())
	if !validated.OK() {
		result.Failure = validated.Failure
		return result
	}

	applied := r.pipeline.Apply(ctx, validated.Value.ApplyInput())
	result.Apply = &applied.Value
	result.State = result.State.Next(applied.OK())
	if !applied.OK() {
		result.Failure = applied.Failure
	}
	return result
}
