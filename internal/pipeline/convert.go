package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/savaki/tf-provisioner/internal/artifacts"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/models"
)

// Convert generates Terraform source for input.Input and stores it verbatim
// at terraform_code/{id}/main.tf. A request id is minted when input has none;
// a supplied id whose source already exists is rejected with ErrRequestReused.
func (p *Pipeline) Convert(ctx context.Context, input models.ConvertInput) (result Result[models.ConvertOutput]) {
	requestID := input.RequestID
	if requestID == "" {
		requestID = p.newID()
	}

	ctx, logger := withStage(ctx, StageConvert, requestID)

	defer func(begin time.Time) {
		logger.Info().
			Str("status", string(result.Value.Status)).
			Str("s3_key", result.Value.S3Key).
			Dur("duration", time.Since(begin)).
			Msg("Convert finished")
	}(time.Now())

	output, err := p.convert(ctx, requestID, input)
	if err != nil {
		output = models.ConvertOutput{
			RequestID: requestID,
			S3Bucket:  p.config.Bucket,
			Status:    models.StatusFailed,
			Message:   err.Error(),
		}
		return Result[models.ConvertOutput]{Value: output, Failure: p.fail(ctx, StageConvert, requestID, err)}
	}
	return Result[models.ConvertOutput]{Value: output}
}

func (p *Pipeline) convert(ctx context.Context, requestID string, input models.ConvertInput) (models.ConvertOutput, error) {
	if err := input.Validate(); err != nil {
		return models.ConvertOutput{}, err
	}
	if p.config.Bucket == "" {
		return models.ConvertOutput{}, fmt.Errorf("%w: state bucket", tferrors.ErrMissingField)
	}

	key := artifacts.SourceKey(requestID)
	if input.RequestID != "" {
		if err := p.ensureUnused(ctx, key); err != nil {
			return models.ConvertOutput{}, err
		}
	}

	p.record(ctx, requestID, stateOf(StageConvert), input.Input)

	source, err := p.generator.Generate(ctx, input.Input)
	if err != nil {
		return models.ConvertOutput{}, err
	}
	if strings.TrimSpace(source) == "" {
		return models.ConvertOutput{}, fmt.Errorf("%w: empty source", tferrors.ErrGeneration)
	}

	if err := p.store.Put(ctx, p.config.Bucket, key, []byte(source)); err != nil {
		return models.ConvertOutput{}, err
	}

	return models.ConvertOutput{
		RequestID: requestID,
		S3Bucket:  p.config.Bucket,
		S3Key:     key,
		Status:    models.StatusSuccess,
		Message:   "Successfully converted natural language to Terraform code",
	}, nil
}

// ensureUnused fails when a previous attempt already stored source at key
func (p *Pipeline) ensureUnused(ctx context.Context, key string) error {
	_, err := p.store.Get(ctx, p.config.Bucket, key)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s exists", tferrors.ErrRequestReused, artifacts.URI(p.config.Bucket, key))
	case errors.Is(err, tferrors.ErrArtifactNotFound):
		return nil
	default:
		return err
	}
}
