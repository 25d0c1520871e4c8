package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/tfcode"
)

const (
	checkPassed = "PASSED"
	checkFailed = "FAILED"
)

// Validate sanitizes a private copy of the generated source and runs the
// static syntax checks, then the policy gate when one is configured. Source
// the gate cannot parse fails as a syntax check with KindParse. The
// result document is written to terraform_validation/{id}/validation_result.json
// whether or not the checks pass.
func (p *Pipeline) Validate(ctx context.Context, input models.ValidateInput) (result Result[models.ValidateOutput]) {
	ctx, logger := withStage(ctx, StageValidate, input.RequestID)

	defer func(begin time.Time) {
		logger.Info().
			Str("status", string(result.Value.Status)).
			Str("s3_validation_key", result.Value.S3ValidationKey).
			Dur("duration", time.Since(begin)).
			Msg("Validate finished")
	}(time.Now())

	output, err := p.validate(ctx, input)
	if err != nil {
		output.RequestID = input.RequestID
		output.S3Bucket = input.S3Bucket
		output.S3TerraformKey = input.S3Key
		output.Status = models.StatusFailed
		output.Message = err.Error()
		return Result[models.ValidateOutput]{Value: output, Failure: p.fail(ctx, StageValidate, input.RequestID, err)}
	}
	return Result[models.ValidateOutput]{Value: output}
}

func (p *Pipeline) validate(ctx context.Context, input models.ValidateInput) (models.ValidateOutput, error) {
	if err := input.Validate(); err != nil {
		return models.ValidateOutput{}, err
	}

	p.record(ctx, input.RequestID, stateOf(StageValidate), "")

	raw, err := p.store.Get(ctx, input.S3Bucket, input.S3Key)
	if err != nil {
		return models.ValidateOutput{}, err
	}

	source := tfcode.Sanitize(string(raw))

	diagnostics := tfcode.CheckSyntax(source)
	if diagnostics == nil {
		diagnostics = []string{}
	}

	document := models.ValidationResult{
		SyntaxCheck: checkPassed,
		Errors:      diagnostics,
		Status:      models.StatusSuccess,
	}

	var checkErr error
	if len(diagnostics) > 0 {
		document.SyntaxCheck = checkFailed
		document.Status = models.StatusFailed
		checkErr = fmt.Errorf("%w:\n%s", tferrors.ErrSyntax, strings.Join(diagnostics, "\n"))
	} else if p.policy != nil {
		verdict, err := p.policy.ValidateSource(ctx, source)
		switch {
		case errors.Is(err, tferrors.ErrParse):
			// the policy never ran, so policy_check stays unset
			document.SyntaxCheck = checkFailed
			document.Errors = append(document.Errors, err.Error())
			document.Status = models.StatusFailed
			checkErr = err

		case err != nil:
			return models.ValidateOutput{}, fmt.Errorf("failed to evaluate policy: %w", err)

		case verdict.Allowed:
			document.PolicyCheck = checkPassed

		default:
			document.PolicyCheck = checkFailed
			document.PolicyViolations = verdict.Violations
			document.Status = models.StatusFailed
			checkErr = fmt.Errorf("%w:\n%s", tferrors.ErrPolicy, strings.Join(verdict.Violations, "\n"))
		}
	}

	key := artifacts.ValidationKey(input.RequestID)
	if err := p.putValidation(ctx, input.S3Bucket, key, document); err != nil {
		if checkErr != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Unable to store failed validation result")
			return models.ValidateOutput{}, checkErr
		}
		return models.ValidateOutput{}, err
	}

	output := models.ValidateOutput{
		RequestID:       input.RequestID,
		S3Bucket:        input.S3Bucket,
		S3TerraformKey:  input.S3Key,
		S3ValidationKey: key,
		Status:          models.StatusSuccess,
		Message:         "Successfully validated Terraform code",
	}
	return output, checkErr
}

func (p *Pipeline) putValidation(ctx context.Context, bucket, key string, document models.ValidationResult) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal validation result: %w", err)
	}
	return p.store.Put(ctx, bucket, key, data)
}
