package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/di"
	"github.com/urfave/cli/v2"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Environment (dev, stg, or prd) - selects the /{env}/tf-provisioner parameters",
		Value:   "dev",
		EnvVars: []string{"ENV"},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Usage:   "YAML parameter file; replaces SSM and environment configuration",
		EnvVars: []string{"TF_PROVISIONER_CONFIG"},
	}
}

// newContainer builds the container for a command from its --env and --config flags
func newContainer(c *cli.Context, logger *zerolog.Logger) (di.Container, error) {
	opts := []di.Option{
		di.WithContext(logger.WithContext(c.Context)),
	}
	if filename := c.String("config"); filename != "" {
		opts = append(opts, di.WithParameterFile(filename))
	}

	container, err := di.New(c.String("env"), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	return container, nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
