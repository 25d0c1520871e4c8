package pipeline

import (
	"context"
	"errors"
	"fmt"

	tferrors "github.com/savaki/tf-provisioner/internal/errors"
)

// Stage names one pipeline step
type Stage string

const (
	StageConvert  Stage = "convert"
	StageValidate Stage = "validate"
	StageApply    Stage = "apply"
)

// Subject is the notification subject used when the stage fails
func (s Stage) Subject() string {
	switch s {
	case StageConvert:
		return "Error in NLP to Terraform Conversion"
	case StageValidate:
		return "Error in Terraform Validation"
	case StageApply:
		return "Error in Terraform Apply"
	default:
		return "Error in Terraform Pipeline"
	}
}

func (s Stage) action() string {
	switch s {
	case StageConvert:
		return "Failed to process request"
	case StageValidate:
		return "Failed to validate Terraform code"
	case StageApply:
		return "Failed to apply Terraform code"
	default:
		return "Failed to run pipeline"
	}
}

// Kind classifies a stage failure
type Kind string

const (
	KindGeneration     Kind = "generation"
	KindSyntax         Kind = "syntax"
	KindParse          Kind = "parse"
	KindPolicy         Kind = "policy"
	KindInvalidInput   Kind = "invalid_input"
	KindArtifact       Kind = "artifact"
	KindBinaryNotFound Kind = "binary_not_found"
	KindToolExecution  Kind = "tool_execution"
	KindTimeout        Kind = "timeout"
	KindCanceled       Kind = "canceled"
	KindInternal       Kind = "internal"
)

// Classify maps an error onto a Kind using the sentinel errors it wraps
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tferrors.ErrTimeout):
		return KindTimeout
	case errors.Is(err, tferrors.ErrBinaryNotFound):
		return KindBinaryNotFound
	case errors.Is(err, tferrors.ErrToolExecution):
		return KindToolExecution
	case errors.Is(err, tferrors.ErrGeneration):
		return KindGeneration
	case errors.Is(err, tferrors.ErrParse):
		return KindParse
	case errors.Is(err, tferrors.ErrSyntax):
		return KindSyntax
	case errors.Is(err, tferrors.ErrPolicy):
		return KindPolicy
	case errors.Is(err, tferrors.ErrMissingField), errors.Is(err, tferrors.ErrRequestReused):
		return KindInvalidInput
	case errors.Is(err, tferrors.ErrArtifactNotFound):
		return KindArtifact
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// Failure is the failure variant of a stage Result
type Failure struct {
	Stage     Stage
	Kind      Kind
	RequestID string
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s stage failed for request %s (%s): %v", f.Stage, f.RequestID, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Message is the notification body for the failure
func (f *Failure) Message() string {
	requestID := f.RequestID
	if requestID == "" {
		requestID = "unknown"
	}
	return fmt.Sprintf("%s for request %s\n\nstage: %s\nkind: %s\nerror: %v", f.Stage.action(), requestID, f.Stage, f.Kind, f.Err)
}

// Result is the outcome of one stage. Value is always populated; on failure
// it carries status FAILED and Failure is set.
type Result[T any] struct {
	Value   T
	Failure *Failure
}

func (r Result[T]) OK() bool {
	return r.Failure == nil
}

// Unwrap converts the result into Go's value/error convention
func (r Result[T]) Unwrap() (T, error) {
	if r.Failure != nil {
		return r.Value, r.Failure
	}
	return r.Value, nil
}
