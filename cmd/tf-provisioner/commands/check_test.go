package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func runApp(t *testing.T, args ...string) (checkReport, error) {
	t.Helper()

	logger := zerolog.New(io.Discard)
	var out bytes.Buffer
	app := &cli.App{
		Name:     "tf-provisioner",
		Writer:   &out,
		Commands: []*cli.Command{CheckCommand(&logger)},
	}

	err := app.RunContext(context.Background(), append([]string{"tf-provisioner"}, args...))

	var report checkReport
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	}
	return report, err
}

func writeSource(t *testing.T, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "main.tf")
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

const bucketSource = "```hcl\n" + `provider "aws" {}

resource "aws_s3_bucket" "demo" {
  bucket = "demo"
}
` + "```\n"

func TestCheck(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preview")

	report, err := runApp(t, "check", "--out", out, "--request-id", "abc", writeSource(t, bucketSource))
	require.NoError(t, err)

	assert.Empty(t, report.SyntaxErrors)
	assert.Empty(t, report.PolicyViolations)
	assert.Equal(t, []string{"backend.tf", "main.tf", "versions.tf"}, report.Files)
	assert.Equal(t, []string{"aws_s3_bucket.demo"}, report.Resources)

	backend, err := os.ReadFile(filepath.Join(out, "backend.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(backend), "terraform_state/abc/terraform.tfstate")
}

func TestCheck_SyntaxErrors(t *testing.T) {
	report, err := runApp(t, "check", writeSource(t, `resource "aws_s3_bucket" "demo" {`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tferrors.ErrSyntax))
	assert.Len(t, report.SyntaxErrors, 2)
}

func TestCheck_PolicyViolations(t *testing.T) {
	report, err := runApp(t, "check", "--deny", "aws_s3_bucket", writeSource(t, bucketSource))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tferrors.ErrPolicy))
	assert.Equal(t, []string{"Resource type 'aws_s3_bucket' is not allowed (aws_s3_bucket.demo)"}, report.PolicyViolations)
}

func TestCheck_ParseErrorIsNotPolicy(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preview")
	source := `provider "aws" {
  profile = "default"
}

resource "aws_s3_bucket" "demo" { bucket = }
`

	report, err := runApp(t, "check", "--deny", "aws_s3_bucket", "--out", out, writeSource(t, source))
	require.Error(t, err)
	assert.True(t, errors.Is(err, tferrors.ErrSyntax))
	assert.Empty(t, report.PolicyViolations)
	require.Len(t, report.SyntaxErrors, 1)
	assert.Contains(t, report.SyntaxErrors[0], "does not parse")
	assert.Empty(t, report.Resources)

	// the preview falls back to the text heuristic
	main, err := os.ReadFile(filepath.Join(out, "main.tf"))
	require.NoError(t, err)
	assert.Contains(t, string(main), `region = "us-east-1"`)
}

func TestCheck_MissingFile(t *testing.T) {
	_, err := runApp(t, "check", filepath.Join(t.TempDir(), "absent.tf"))
	assert.Error(t, err)
}
