package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/savaki/gox/slicex"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/policy"
	"github.com/savaki/tf-provisioner/internal/tfcode"
	"github.com/savaki/tf-provisioner/internal/tfconfig"
	"github.com/urfave/cli/v2"
)

// CheckCommand returns the check command, which validates a file locally
func CheckCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Run the Validate checks against a local Terraform file",
		ArgsUsage: "<file>",
		Description: `Sanitizes the file the same way the pipeline does, runs the syntax checks
and the policy gate, and optionally writes the files Apply would place in
its sandbox. Needs no AWS access.

Examples:
  tf-provisioner check main.tf
  tf-provisioner check --deny aws_iam_user --out ./preview main.tf`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "deny",
				Usage:   "Resource type to reject (can be specified multiple times)",
				EnvVars: []string{"POLICY_DENIED_RESOURCES"},
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Directory to write the synthesized sandbox files to",
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Request id used for the state key in the synthesized backend",
				Value: "local",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "State bucket used in the synthesized backend",
				Value: "local-state",
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "Region used in the synthesized provider and backend",
				Value: "us-east-1",
			},
		},
		Action: func(c *cli.Context) error {
			return checkAction(c, logger)
		},
	}
}

type checkReport struct {
	File             string   `json:"file"`
	SyntaxErrors     []string `json:"syntaxErrors"`
	PolicyViolations []string `json:"policyViolations"`
	Resources        []string `json:"resources,omitempty"`
	Files            []string `json:"files,omitempty"`
}

func checkAction(c *cli.Context, logger *zerolog.Logger) error {
	filename := c.Args().First()
	if filename == "" {
		return fmt.Errorf("file is required")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	ctx := logger.WithContext(c.Context)
	source := tfcode.Sanitize(string(data))

	report := checkReport{
		File:             filename,
		SyntaxErrors:     tfcode.CheckSyntax(source),
		PolicyViolations: []string{},
	}
	if report.SyntaxErrors == nil {
		report.SyntaxErrors = []string{}
	}

	// the policy gate only sees source that passed the syntax checks
	if len(report.SyntaxErrors) == 0 {
		validator, err := policy.NewValidator(ctx, c.StringSlice("deny"))
		if err != nil {
			return err
		}
		result, err := validator.ValidateSource(ctx, source)
		switch {
		case errors.Is(err, tferrors.ErrParse):
			report.SyntaxErrors = append(report.SyntaxErrors, err.Error())
		case err != nil:
			return err
		case !result.Allowed:
			report.PolicyViolations = result.Violations
		}
	}

	if resources, err := tfconfig.Inventory(source); err == nil {
		report.Resources = slicex.Map(resources, tfconfig.Resource.Address)
	}

	if dir := c.String("out"); dir != "" {
		names, err := writePreview(dir, source, c.String("request-id"), c.String("bucket"), c.String("region"))
		if err != nil {
			return err
		}
		report.Files = names
	}

	if err := writeJSON(c.App.Writer, report); err != nil {
		return err
	}

	switch {
	case len(report.SyntaxErrors) > 0:
		return fmt.Errorf("%w: %d problem(s) in %s", tferrors.ErrSyntax, len(report.SyntaxErrors), filename)
	case len(report.PolicyViolations) > 0:
		return fmt.Errorf("%w: %d violation(s) in %s", tferrors.ErrPolicy, len(report.PolicyViolations), filename)
	default:
		return nil
	}
}

// writePreview writes the files Apply would synthesize into dir
func writePreview(dir, source, requestID, bucket, region string) ([]string, error) {
	files, err := tfconfig.Synthesize(source, tfconfig.Options{
		Bucket:   bucket,
		StateKey: artifacts.StateKey(requestID),
		Region:   region,
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	var names []string
	for name, content := range files.Map() {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
