package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/services"
)

// ProvideSSMClient provides an SSM client for Parameter Store access
// Returns nil if SSM is disabled (for local development)
func ProvideSSMClient(awsConfig aws.Config) *ssm.Client {
	// Check if SSM should be disabled (local development)
	if os.Getenv("DISABLE_SSM") == "true" {
		return nil
	}

	return ssm.NewFromConfig(awsConfig)
}

// ProvideParameterStore provides a ParameterStore implementation. A parameter
// file wins, then SSM Parameter Store, then environment variables.
func ProvideParameterStore(ctx context.Context, ssmClient *ssm.Client, env string, file ParameterFile) services.ParameterStore {
	logger := zerolog.Ctx(ctx)

	if file != "" {
		logger.Info().Str("file", string(file)).Msg("Using parameter file for configuration")
		return services.NewFileParameterStore(string(file))
	}

	if ssmClient == nil {
		logger.Info().Msg("Using environment variables for configuration (SSM disabled)")
		return services.NewEnvParameterStore(env)
	}

	logger.Info().Msg("Using AWS Systems Manager Parameter Store for configuration")
	return services.NewSSMParameterStore(ssmClient, env)
}

// ProvideAppConfig loads application configuration from the parameter store
func ProvideAppConfig(ctx context.Context, store services.ParameterStore) (*services.Config, error) {
	logger := zerolog.Ctx(ctx)

	config, err := store.GetConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Info().
		Str("state_bucket", config.StateBucket).
		Str("region", config.Region).
		Str("model_id", config.ModelID).
		Dur("timeout", config.Timeout).
		Bool("has_sns_topic", config.SNSTopic != "").
		Bool("has_request_table", config.RequestTable != "").
		Msg("Configuration loaded successfully")

	return config, nil
}
