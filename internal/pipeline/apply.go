package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	"github.com/savaki/tf-provisioner/internal/executor"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/tfcode"
	"github.com/savaki/tf-provisioner/internal/tfconfig"
)

// Apply runs init, plan, apply and output against a fresh sandbox. The plan
// is uploaded as soon as plan succeeds and the apply log is uploaded whether
// or not apply succeeds. The sandbox is removed on every path.
func (p *Pipeline) Apply(ctx context.Context, input models.ApplyInput) (result Result[models.ApplyOutput]) {
	ctx, logger := withStage(ctx, StageApply, input.RequestID)

	defer func(begin time.Time) {
		logger.Info().
			Str("status", string(result.Value.Status)).
			Str("s3_outputs_key", result.Value.S3OutputsKey).
			Dur("duration", time.Since(begin)).
			Msg("Apply finished")
	}(time.Now())

	output, err := p.apply(ctx, input)
	if err != nil {
		output.RequestID = input.RequestID
		output.S3Bucket = input.S3Bucket
		output.S3TerraformKey = input.S3TerraformKey
		output.Status = models.StatusFailed
		output.Message = err.Error()
		return Result[models.ApplyOutput]{Value: output, Failure: p.fail(ctx, StageApply, input.RequestID, err)}
	}

	p.record(ctx, input.RequestID, StateSucceeded, output.Message)
	return Result[models.ApplyOutput]{Value: output}
}

func (p *Pipeline) apply(ctx context.Context, input models.ApplyInput) (output models.ApplyOutput, err error) {
	logger := zerolog.Ctx(ctx)

	if err := input.Validate(); err != nil {
		return output, err
	}

	p.record(ctx, input.RequestID, stateOf(StageApply), "")

	raw, err := p.store.Get(ctx, input.S3Bucket, input.S3TerraformKey)
	if err != nil {
		return output, err
	}

	sandbox, err := executor.NewSandbox(p.config.SandboxRoot, input.RequestID)
	if err != nil {
		return output, err
	}
	defer func() {
		if cerr := sandbox.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Unable to remove sandbox")
		}
	}()

	if err := p.prepare(ctx, sandbox, input, tfcode.Sanitize(string(raw))); err != nil {
		return output, err
	}

	tool, err := executor.Stage(ctx, p.config.Executor, sandbox)
	if err != nil {
		return output, err
	}

	if outcome := tool.Init(ctx); !outcome.OK() {
		return output, fmt.Errorf("terraform init failed: %w", outcome.Err)
	}

	if outcome := tool.Plan(ctx); !outcome.OK() {
		return output, fmt.Errorf("terraform plan failed: %w", outcome.Err)
	}

	planKey := artifacts.PlanKey(input.RequestID)
	if err := p.store.PutFile(ctx, input.S3Bucket, planKey, sandbox.Path(executor.PlanFile)); err != nil {
		return output, fmt.Errorf("failed to upload plan: %w", err)
	}

	applied := tool.Apply(ctx)

	logKey := artifacts.ApplyLogKey(input.RequestID)
	if err := p.store.Put(ctx, input.S3Bucket, logKey, []byte(applied.Log())); err != nil {
		if !applied.OK() {
			logger.Error().Err(err).Msg("Unable to upload apply log")
			return output, fmt.Errorf("terraform apply failed: %w", applied.Err)
		}
		return output, fmt.Errorf("failed to upload apply log: %w", err)
	}
	output.S3ApplyLogsKey = logKey

	if !applied.OK() {
		return output, fmt.Errorf("terraform apply failed: %w", applied.Err)
	}

	output.RequestID = input.RequestID
	output.S3Bucket = input.S3Bucket
	output.S3TerraformKey = input.S3TerraformKey
	output.Status = models.StatusSuccess
	output.Message = "Successfully deployed infrastructure using Terraform"

	// outputs are best effort
	outputs := tool.Output(ctx)
	if !outputs.OK() {
		logger.Warn().Err(outputs.Err).Msg("Unable to read terraform outputs")
		return output, nil
	}

	outputsKey := artifacts.OutputsKey(input.RequestID)
	if err := p.store.Put(ctx, input.S3Bucket, outputsKey, []byte(outputs.Stdout)); err != nil {
		logger.Warn().Err(err).Msg("Unable to upload terraform outputs")
		return output, nil
	}
	output.S3OutputsKey = outputsKey

	return output, nil
}

// prepare writes the sanitized source, the synthesized configuration and the
// shared AWS config into the sandbox
func (p *Pipeline) prepare(ctx context.Context, sandbox *executor.Sandbox, input models.ApplyInput, source string) error {
	bucket := p.config.Bucket
	if bucket == "" {
		bucket = input.S3Bucket
	}

	files, err := tfconfig.Synthesize(source, tfconfig.Options{
		Bucket:   bucket,
		StateKey: artifacts.StateKey(input.RequestID),
		Region:   p.config.Region,
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize terraform configuration: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Bool("provider_declared", files.ProviderDeclared).
		Bool("structural", files.Structural).
		Bool("tfvars", files.TFVars != "").
		Msg("Synthesized terraform configuration")

	if err := sandbox.WriteFiles(files.Map()); err != nil {
		return err
	}
	return sandbox.WriteFile(executor.AWSConfigFile, []byte(executor.AWSConfig(p.config.Region)))
}
