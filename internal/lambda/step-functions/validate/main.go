package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/urfave/cli/v2"
)

// Validator is implemented by *pipeline.Pipeline
type Validator interface {
	Validate(ctx context.Context, input models.ValidateInput) pipeline.Result[models.ValidateOutput]
}

type Handler struct {
	validator Validator
}

func NewHandler(validator Validator) *Handler {
	return &Handler{
		validator: validator,
	}
}

// HandleValidate checks the stored source. The input is the Convert output
// as passed along by the state machine.
func (h *Handler) HandleValidate(ctx context.Context, input *models.ValidateInput) (*models.ValidateOutput, error) {
	logger := zerolog.Ctx(ctx)

	if input == nil {
		return nil, fmt.Errorf("validate input is required")
	}

	logger.Info().
		Str("request_id", input.RequestID).
		Str("s3_bucket", input.S3Bucket).
		Str("s3_key", input.S3Key).
		Msg("Validating Terraform")

	output, err := h.validator.Validate(ctx, *input).Unwrap()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("request_id", output.RequestID).
		Str("s3_validation_key", output.S3ValidationKey).
		Msg("Terraform passed validation")

	return &output, nil
}

func newHandler(ctx context.Context, env string) (*Handler, error) {
	container, err := di.New(env, di.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	p, err := di.Get[*pipeline.Pipeline](container)
	if err != nil {
		return nil, err
	}
	return NewHandler(p), nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "validate").Logger()
	ctx := logger.WithContext(context.Background())

	// Get environment from ENV or ENVIRONMENT variable
	env := os.Getenv("ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		logger.Error().Msg("ENV or ENVIRONMENT variable is required")
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		// Lambda mode
		handler, err := newHandler(ctx, env)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create handler")
			os.Exit(1)
		}

		// Wrap handler to inject logger into context
		wrappedHandler := func(ctx context.Context, input *models.ValidateInput) (*models.ValidateOutput, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleValidate(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "validate",
		Usage: "Validate generated Terraform stored in S3",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "request-id",
				Usage:    "Request id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "bucket",
				Usage:    "Artifact bucket",
				Required: true,
				EnvVars:  []string{"STATE_BUCKET"},
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "Source key (defaults to terraform_code/{request-id}/main.tf)",
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newHandler(ctx, env)
			if err != nil {
				return fmt.Errorf("failed to create handler: %w", err)
			}

			key := c.String("key")
			if key == "" {
				key = artifacts.SourceKey(c.String("request-id"))
			}

			output, err := handler.HandleValidate(ctx, &models.ValidateInput{
				RequestID: c.String("request-id"),
				S3Bucket:  c.String("bucket"),
				S3Key:     key,
			})
			if err != nil {
				return err
			}
			return printJSON(output)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
