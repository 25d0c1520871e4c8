package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/urfave/cli/v2"
)

// RunCommand returns the run command, which drives all stages in-process
func RunCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Convert, validate and apply a request in-process",
		ArgsUsage: "<request>",
		Description: `Runs Convert, Validate and Apply in order for one request, without Step
Functions. Uses the same S3 bucket, Bedrock model and SNS topic as the
deployed pipeline, and requires a terraform binary (see terraform-layer).

Examples:
  # Provision from a request
  tf-provisioner run "create an S3 bucket named demo with versioning enabled"

  # Use a local parameter file
  tf-provisioner run --config params.yaml "a t3.micro EC2 instance"`,
		Flags: []cli.Flag{
			envFlag(),
			configFlag(),
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Request id, minted when omitted; an id that already has source is rejected",
			},
		},
		Action: func(c *cli.Context) error {
			return runAction(c, logger)
		},
	}
}

func runAction(c *cli.Context, logger *zerolog.Logger) error {
	request := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if request == "" {
		return fmt.Errorf("request is required")
	}

	container, err := newContainer(c, logger)
	if err != nil {
		return err
	}

	runner, err := di.Get[*pipeline.Runner](container)
	if err != nil {
		return err
	}

	ctx := logger.WithContext(c.Context)
	result := runner.Run(ctx, request, c.String("request-id"))

	logger.Info().
		Str("request_id", result.RequestID).
		Str("state", string(result.State)).
		Msg("Pipeline finished")

	view := runView{
		RequestID: result.RequestID,
		State:     result.State,
		Convert:   result.Convert,
		Validate:  result.Validate,
		Apply:     result.Apply,
	}
	if result.Failure != nil {
		view.Kind = result.Failure.Kind
		view.Error = result.Failure.Error()
	}

	if err := writeJSON(c.App.Writer, view); err != nil {
		return err
	}
	return result.Err()
}

type runView struct {
	RequestID string                 `json:"requestId"`
	State     pipeline.State         `json:"state"`
	Convert   *models.ConvertOutput  `json:"convert,omitempty"`
	Validate  *models.ValidateOutput `json:"validate,omitempty"`
	Apply     *models.ApplyOutput    `json:"apply,omitempty"`
	Kind      pipeline.Kind          `json:"kind,omitempty"`
	Error     string                 `json:"error,omitempty"`
}
