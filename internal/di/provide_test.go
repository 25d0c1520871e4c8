package di

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/savaki/tf-provisioner/internal/notify"
	"github.com/savaki/tf-provisioner/internal/orchestrator"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/savaki/tf-provisioner/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	t.Setenv("DISABLE_SSM", "true")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	for key := range envKeys {
		t.Setenv(key, env[key])
	}
}

var envKeys = map[string]struct{}{
	"STATE_BUCKET":      {},
	"SNS_TOPIC":         {},
	"STATE_MACHINE_ARN": {},
	"REQUEST_TABLE":     {},
	"TERRAFORM_LAYER":   {},
	"TERRAFORM_TIMEOUT": {},
}

func TestProvidePipeline(t *testing.T) {
	setEnv(t, map[string]string{
		"STATE_BUCKET": "state-bucket",
		"SNS_TOPIC":    "arn:aws:sns:us-east-1:123456789012:alerts",
	})

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	assert.NotNil(t, MustGet[*pipeline.Pipeline](container))
	assert.NotNil(t, MustGet[*pipeline.Runner](container))
	assert.Nil(t, MustGet[*requestdao.DAO](container), "no table configured")
	assert.IsType(t, &notify.SNS{}, MustGet[notify.Notifier](container))
}

func TestProvidePipeline_RequiresBucket(t *testing.T) {
	setEnv(t, nil)

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	err = container.Invoke(func(*pipeline.Pipeline) {})
	assert.Error(t, err)
}

func TestProvideNotifier_LogsWithoutTopic(t *testing.T) {
	setEnv(t, map[string]string{"STATE_BUCKET": "state-bucket"})

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	assert.Equal(t, notify.Log{}, MustGet[notify.Notifier](container))
}

func TestProvideOrchestrator(t *testing.T) {
	setEnv(t, map[string]string{
		"STATE_MACHINE_ARN": "arn:aws:states:us-east-1:123456789012:stateMachine:tf-provisioner",
		"REQUEST_TABLE":     "tf-provisioner-dev-requests",
	})

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	assert.NotNil(t, MustGet[*orchestrator.Orchestrator](container))
	assert.NotNil(t, MustGet[*requestdao.DAO](container))
}

func TestProvideOrchestrator_RequiresStateMachine(t *testing.T) {
	setEnv(t, nil)

	container, err := New("dev", WithContext(testContext()))
	require.NoError(t, err)

	err = container.Invoke(func(*orchestrator.Orchestrator) {})
	assert.Error(t, err)
}

func TestWithParameterFile(t *testing.T) {
	setEnv(t, map[string]string{"STATE_BUCKET": "from-env"})

	filename := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("state-bucket: \"from-file\"\n"), 0o644))

	container, err := New("dev", WithContext(testContext()), WithParameterFile(filename))
	require.NoError(t, err)

	config := MustGet[*services.Config](container)
	assert.Equal(t, "from-file", config.StateBucket)
}

func TestExecutorConfig(t *testing.T) {
	config, err := services.NewConfig(map[string]string{
		services.ParamTerraformLayer: "/opt/terraform/bin",
		services.ParamTimeout:        "1m",
		services.ParamRegion:         "eu-west-1",
	})
	require.NoError(t, err)

	got := ExecutorConfig(config)
	assert.Equal(t, "/opt/terraform/bin/terraform", got.BinaryPath)
	assert.Equal(t, services.DefaultSearchRoot, got.SearchRoot)
	assert.Equal(t, "eu-west-1", got.Region)
	assert.Equal(t, time.Minute, got.Timeout)
	assert.NotEmpty(t, got.BaseEnv)
}
