package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/orchestrator"
	"github.com/urfave/cli/v2"
)

// StartCommand returns the start command, which starts a state machine execution
func StartCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start the pipeline state machine for a request",
		ArgsUsage: "<request>",
		Description: `Mints a request id, records the request and starts a Step Functions
execution named after it. Prints the request id and execution ARN.

Examples:
  tf-provisioner start --env dev "create an S3 bucket named demo"`,
		Flags: []cli.Flag{
			envFlag(),
			configFlag(),
		},
		Action: func(c *cli.Context) error {
			return startAction(c, logger)
		},
	}
}

func startAction(c *cli.Context, logger *zerolog.Logger) error {
	request := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if request == "" {
		return fmt.Errorf("request is required")
	}

	container, err := newContainer(c, logger)
	if err != nil {
		return err
	}

	o, err := di.Get[*orchestrator.Orchestrator](container)
	if err != nil {
		return err
	}

	execution, err := o.StartExecution(logger.WithContext(c.Context), request)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, execution)
}
