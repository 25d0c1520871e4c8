package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/notify"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/urfave/cli/v2"
)

// Recorder is implemented by *requestdao.DAO
type Recorder interface {
	Record(ctx context.Context, requestID, state, message string) error
}

type Handler struct {
	recorder Recorder
	notifier notify.Notifier
}

// TaskError is the error object Step Functions places on the state input
// when a Catch clause fires
type TaskError struct {
	Error string `json:"Error"`
	Cause string `json:"Cause"`
}

type RecordStatusInput struct {
	RequestID string     `json:"requestId"`
	State     string     `json:"state"`
	Stage     string     `json:"stage,omitempty"`  // Stage that failed, when State is FAILED
	Error     *TaskError `json:"error,omitempty"`  // Caught task error, if any
	Notify    bool       `json:"notify,omitempty"` // Publish a failure notification; set for failures the stage could not report itself
}

func NewHandler(recorder Recorder, notifier notify.Notifier) *Handler {
	return &Handler{
		recorder: recorder,
		notifier: notifier,
	}
}

func (in *RecordStatusInput) message() string {
	if in.Error == nil {
		return ""
	}
	var parts []string
	for _, part := range []string{in.Error.Error, in.Error.Cause} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ": ")
}

func (h *Handler) HandleRecordStatus(ctx context.Context, input *RecordStatusInput) error {
	logger := zerolog.Ctx(ctx)

	if input == nil || input.RequestID == "" {
		return fmt.Errorf("requestId is required")
	}

	state := pipeline.State(input.State)
	switch state {
	case pipeline.StateConverting, pipeline.StateValidating, pipeline.StateApplying, pipeline.StateSucceeded, pipeline.StateFailed:
	default:
		return fmt.Errorf("invalid state %q", input.State)
	}

	logger.Info().
		Str("request_id", input.RequestID).
		Str("state", input.State).
		Str("stage", input.Stage).
		Msg("Recording request status")

	if err := h.recorder.Record(ctx, input.RequestID, input.State, input.message()); err != nil {
		return fmt.Errorf("failed to record request status: %w", err)
	}

	if input.Notify && state == pipeline.StateFailed {
		failure := &pipeline.Failure{
			Stage:     pipeline.Stage(input.Stage),
			Kind:      pipeline.KindInternal,
			RequestID: input.RequestID,
			Err:       errors.New(input.message()),
		}
		if err := h.notifier.Notify(ctx, failure.Stage.Subject(), failure.Message()); err != nil {
			logger.Error().Err(err).Str("request_id", input.RequestID).Msg("Failed to publish failure notification")
		}
	}

	logger.Info().
		Str("request_id", input.RequestID).
		Str("state", input.State).
		Msg("Successfully recorded request status")

	return nil
}

func newHandler(ctx context.Context, env string) (*Handler, error) {
	container, err := di.New(env, di.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	var handler *Handler
	err = container.Invoke(func(dao *requestdao.DAO, notifier notify.Notifier) error {
		if dao == nil {
			return fmt.Errorf("REQUEST_TABLE required")
		}
		handler = NewHandler(dao, notifier)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handler, nil
}

func main() {
	logger := di.ProvideLogger().With().Str("lambda", "record-status").Logger()
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
		wrappedHandler := func(ctx context.Context, input *RecordStatusInput) error {
			ctx = logger.WithContext(ctx)
			return handler.HandleRecordStatus(ctx, input)
		}
		lambda.Start(wrappedHandler)
		return
	}

	// CLI mode
	app := &cli.App{
		Name:  "record-status",
		Usage: "Record a request state transition in DynamoDB",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "request-id",
				Usage:    "Request id",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "state",
				Usage:    "Request state (CONVERTING, VALIDATING, APPLYING, SUCCEEDED, FAILED)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "stage",
				Usage: "Failed stage (convert, validate, apply)",
			},
			&cli.StringFlag{
				Name:  "error-msg",
				Usage: "Error message (optional)",
			},
			&cli.BoolFlag{
				Name:  "notify",
				Usage: "Publish a failure notification when state is FAILED",
			},
		},
		Action: func(c *cli.Context) error {
			handler, err := newHandler(ctx, env)
			if err != nil {
				return fmt.Errorf("failed to create handler: %w", err)
			}

			input := &RecordStatusInput{
				RequestID: c.String("request-id"),
				State:     c.String("state"),
				Stage:     c.String("stage"),
				Notify:    c.Bool("notify"),
			}
			if errorMsg := c.String("error-msg"); errorMsg != "" {
				input.Error = &TaskError{Error: errorMsg}
			}

			return handler.HandleRecordStatus(ctx, input)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
