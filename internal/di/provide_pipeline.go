package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/artifacts"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/savaki/tf-provisioner/internal/executor"
	"github.com/savaki/tf-provisioner/internal/generator"
	"github.com/savaki/tf-provisioner/internal/notify"
	"github.com/savaki/tf-provisioner/internal/pipeline"
	"github.com/savaki/tf-provisioner/internal/policy"
	"github.com/savaki/tf-provisioner/internal/services"
)

func ProvideArtifactStore(client *s3.Client) *artifacts.Store {
	return artifacts.New(client)
}

func ProvideGenerator(client *bedrockruntime.Client, config *services.Config) generator.Generator {
	return generator.New(client, generator.WithModelID(config.ModelID))
}

// ProvideNotifier publishes to SNS when a topic is configured and to the log otherwise
func ProvideNotifier(ctx context.Context, client *sns.Client, config *services.Config) notify.Notifier {
	if config.SNSTopic == "" {
		zerolog.Ctx(ctx).Warn().Msg("No SNS topic configured; failures will only be logged")
		return notify.Log{}
	}
	return notify.NewSNS(client, config.SNSTopic)
}

func ProvidePolicy(ctx context.Context, config *services.Config) (*policy.Validator, error) {
	return policy.NewValidator(ctx, config.DeniedResources)
}

// ExecutorConfig maps application configuration onto the terraform executor
func ExecutorConfig(config *services.Config) executor.Config {
	return executor.Config{
		BinaryPath: filepath.Join(config.TerraformLayer, executor.BinaryName),
		SearchRoot: config.SearchRoot,
		Region:     config.Region,
		Timeout:    config.Timeout,
		BaseEnv:    os.Environ(),
	}.WithDefaults()
}

func ProvidePipeline(
	store *artifacts.Store,
	gen generator.Generator,
	notifier notify.Notifier,
	validator *policy.Validator,
	dao *requestdao.DAO,
	config *services.Config,
) (*pipeline.Pipeline, error) {
	if config.StateBucket == "" {
		return nil, fmt.Errorf("STATE_BUCKET required")
	}

	opts := []pipeline.Option{
		pipeline.WithPolicy(validator),
	}
	if dao != nil {
		opts = append(opts, pipeline.WithRecorder(dao))
	}

	return pipeline.New(store, gen, notifier, pipeline.Config{
		Bucket:      config.StateBucket,
		Region:      config.Region,
		SandboxRoot: config.SandboxRoot,
		Executor:    ExecutorConfig(config),
	}, opts...), nil
}

func ProvideRunner(p *pipeline.Pipeline) *pipeline.Runner {
	return pipeline.NewRunner(p)
}
