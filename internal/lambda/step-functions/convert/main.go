package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/urfave/cli/v2"
)

// Converter is implemented by *pipeline.Pipeline
type Converter interface {
	Convert(ctx context.Context, input models.ConvertInput) pipeline.Result[models.ConvertOutput]
}

type Handler struct {
	converter Converter
}

func NewHandler(converter Converter) *Handler {
	return &Handler{
		converter: converter,
	}
}

// HandleConvert generates Terraform for the request and stores it. A failed
// conversion is returned as an error so the execution fails.
func (h *Handler) HandleConvert(ctx context.Context, input *models.ConvertInput) (*models.ConvertOutput, error) {
	logger := zerolog.Ctx(ctx)

	if input == nil {
		return nil, fmt.Errorf("convert input is required")
	}

	logger.Info().
		Str("request_id", input.RequestID).
		Int("input_length", len(input.Input)).
		Msg("Converting request to Terraform")

	output, err := h.converter.Convert(ctx, *input).Unwrap()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("request_id", output.RequestID).
		Str("s3_key", output.S3Key).
		Msg("Successfully converted request")

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

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "convert").Logger()
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
		wrappedHandler := func(ctx context.Context, input *models.ConvertInput) (*models.ConvertOutput, error) {
			ctx = logger.WithContext(ctx)
			return handler.HandleConvert(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "convert",
		Usage: "Convert a natural-language request into Terraform and store it in S3",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "input",
				Usage:    "Natural-language infrastructure request",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Request id (minted when omitted)",
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newHandler(ctx, env)
			if err != nil {
				return fmt.Errorf("failed to create handler: %w", err)
			}

			output, err := handler.HandleConvert(ctx, &models.ConvertInput{
				Input:     c.String("input"),
				RequestID: c.String("request-id"),
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
