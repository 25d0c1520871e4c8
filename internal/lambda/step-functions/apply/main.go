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

// Applier is implemented by *pipeline.Pipeline
type Applier interface {
	Apply(ctx context.Context, input models.ApplyInput) pipeline.Result[models.ApplyOutput]
}

type Handler struct {
	applier Applier
}

func NewHandler(applier Applier) *Handler {
	return &Handler{
		applier: applier,
	}
}

// HandleApply runs terraform init, plan, apply and output for validated source
func (h *Handler) HandleApply(ctx context.Context, input *models.ApplyInput) (*models.ApplyOutput, error) {
	logger := zerolog.Ctx(ctx)

	if input == nil {
		return nil, fmt.Errorf("apply input is required")
	}

	event := logger.Info().
		Str("request_id", input.RequestID).
		Str("s3_terraform_key", input.S3TerraformKey)
	if deadline, ok := ctx.Deadline(); ok {
		event = event.Time("deadline", deadline)
	}
	event.Msg("Applying Terraform")

	output, err := h.applier.Apply(ctx, *input).Unwrap()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("request_id", output.RequestID).
		Str("s3_outputs_key", output.S3OutputsKey).
		Str("s3_apply_logs_key", output.S3ApplyLogsKey).
		Msg("Successfully applied Terraform")

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
	logger := di.ProvideLogger().With().Str("lambda", "apply").Logger()
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
		wrappedHandler := func(ctx context.Context, input *models.ApplyInput) (*models.ApplyOutput, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleApply(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "apply",
		Usage: "Apply validated Terraform stored in S3",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "request-id",
				Usage:    "Request id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "bucket",
				Usage:    "Artifact and state bucket",
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

			output, err := handler.HandleApply(ctx, &models.ApplyInput{
				RequestID:      c.String("request-id"),
				S3Bucket:       c.String("bucket"),
				S3TerraformKey: key,
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
