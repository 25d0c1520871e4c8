package models

import (
	"fmt"
	"strings"

	"github.com/savaki/tf-provisioner/internal/errors"
)

// Status reports the outcome of a single stage invocation
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// ConvertInput is the payload that starts a pipeline run
type ConvertInput struct {
	Input     string `json:"input"`               // Natural-language infrastructure request
	RequestID string `json:"requestId,omitempty"` // Optional; minted by Convert when empty
}

// ConvertOutput is returned by the Convert stage
type ConvertOutput struct {
	RequestID string `json:"requestId"`
	S3Bucket  string `json:"s3Bucket"`
	S3Key     string `json:"s3Key"` // Generated source, terraform_code/{id}/main.tf
	Status    Status `json:"status"`
	Message   string `json:"message"`
}

// ValidateInput is the payload for the Validate stage
type ValidateInput struct {
	RequestID string `json:"requestId"`
	S3Bucket  string `json:"s3Bucket"`
	S3Key     string `json:"s3Key"`
}

// ValidateOutput is returned by the Validate stage
type ValidateOutput struct {
	RequestID       string `json:"requestId"`
	S3Bucket        string `json:"s3Bucket"`
	S3TerraformKey  string `json:"s3TerraformKey"`
	S3ValidationKey string `json:"s3ValidationKey"`
	Status          Status `json:"status"`
	Message         string `json:"message"`
}

// ApplyInput is the payload for the Apply stage
type ApplyInput struct {
	RequestID      string `json:"requestId"`
	S3Bucket       string `json:"s3Bucket"`
	S3TerraformKey string `json:"s3TerraformKey"`
}

// ApplyOutput is returned by the Apply stage
type ApplyOutput struct {
	RequestID      string `json:"requestId"`
	S3Bucket       string `json:"s3Bucket"`
	S3TerraformKey string `json:"s3TerraformKey"`
	S3OutputsKey   string `json:"s3OutputsKey,omitempty"` // Empty when `terraform output` failed
	S3ApplyLogsKey string `json:"s3ApplyLogsKey"`
	Status         Status `json:"status"`
	Message        string `json:"message"`
}

// ValidationResult is the document stored at terraform_validation/{id}/validation_result.json
type ValidationResult struct {
	SyntaxCheck      string   `json:"syntax_check"`
	Errors           []string `json:"errors"`
	PolicyCheck      string   `json:"policy_check,omitempty"`
	PolicyViolations []string `json:"policy_violations,omitempty"`
	Status           Status   `json:"status"`
}

// Validate reports missing required fields
func (in ConvertInput) Validate() error {
	if strings.TrimSpace(in.Input) == "" {
		return fmt.Errorf("%w: input", errors.ErrMissingField)
	}
	return nil
}

// Validate reports missing required fields
func (in ValidateInput) Validate() error {
	return requireFields(
		"requestId", in.RequestID,
		"s3Bucket", in.S3Bucket,
		"s3Key", in.S3Key,
	)
}

// Validate reports missing required fields
func (in ApplyInput) Validate() error {
	return requireFields(
		"requestId", in.RequestID,
		"s3Bucket", in.S3Bucket,
		"s3TerraformKey", in.S3TerraformKey,
	)
}

// ValidateInput carries the Convert output forward into the Validate stage
func (out ConvertOutput) ValidateInput() ValidateInput {
	return ValidateInput{
		RequestID: out.RequestID,
		S3Bucket:  out.S3Bucket,
		S3Key:     out.S3Key,
	}
}

// ApplyInput carries the Validate output forward into the Apply stage
func (out ValidateOutput) ApplyInput() ApplyInput {
	return ApplyInput{
		RequestID:      out.RequestID,
		S3Bucket:       out.S3Bucket,
		S3TerraformKey: out.S3TerraformKey,
	}
}

// requireFields takes name/value pairs and returns ErrMissingField naming every empty value
func requireFields(pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errors.ErrMissingField, strings.Join(missing, ", "))
	}
	return nil
}
