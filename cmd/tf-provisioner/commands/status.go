package commands

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command, which shows a request's recorded state
func StatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the recorded state and history of a request",
		ArgsUsage: "<request-id>",
		Flags: []cli.Flag{
			envFlag(),
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the records as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			return statusAction(c, logger)
		},
	}
}

type statusView struct {
	Current requestdao.Record   `json:"current"`
	History []requestdao.Record `json:"history"`
}

func statusAction(c *cli.Context, logger *zerolog.Logger) error {
	requestID := c.Args().First()
	if requestID == "" {
		return fmt.Errorf("request id is required")
	}

	container, err := newContainer(c, logger)
	if err != nil {
		return err
	}

	dao, err := di.Get[*requestdao.DAO](container)
	if err != nil {
		return err
	}
	if dao == nil {
		return fmt.Errorf("no request table configured")
	}

	ctx := c.Context
	current, err := dao.Find(ctx, requestID)
	if err != nil {
		return err
	}
	history, err := dao.History(ctx, requestID)
	if err != nil {
		return err
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, statusView{Current: current, History: history})
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Request:  %s\n", current.RequestID())
	fmt.Fprintf(w, "State:    %s\n", current.State)
	if current.Message != "" {
		fmt.Fprintf(w, "Message:  %s\n", current.Message)
	}
	if current.ExecutionArn != nil {
		fmt.Fprintf(w, "Execution: %s\n", *current.ExecutionArn)
	}
	fmt.Fprintln(w)
	for _, event := range history {
		fmt.Fprintf(w, "  %s  %-10s  %s\n", event.At().UTC().Format(time.RFC3339), event.State, event.Message)
	}
	return nil
}
