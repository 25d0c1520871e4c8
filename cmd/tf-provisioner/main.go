package main

import (
	"context"
	"os"

	"github.com/savaki/tf-provisioner/cmd/tf-provisioner/commands"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "tf-provisioner",
		Usage: "Natural-language to Terraform provisioning pipeline",
		Description: `Turns a natural-language infrastructure request into Terraform, validates
it, and applies it.

This tool provides commands for:
  - Running the whole pipeline in-process against real AWS services
  - Starting the pipeline state machine for a request
  - Inspecting the recorded status of a request
  - Checking a Terraform file locally without touching AWS`,
		Commands: []*cli.Command{
			commands.RunCommand(&logger),
			commands.StartCommand(&logger),
			commands.StatusCommand(&logger),
			commands.CheckCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
