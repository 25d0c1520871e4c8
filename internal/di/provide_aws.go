package di

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	"github.com/savaki/tf-provisioner/internal/orchestrator"
	"github.com/savaki/tf-provisioner/internal/services"
)

func ProvideAWSConfig(ctx context.Context) (aws.Config, error) {
	return config.LoadDefaultConfig(ctx)
}

func ProvideDynamoDB(config aws.Config) *dynamodb.Client {
	return dynamodb.NewFromConfig(config)
}

func ProvideStepFunctions(config aws.Config) *sfn.Client {
	return sfn.NewFromConfig(config)
}

func ProvideS3Client(config aws.Config) *s3.Client {
	return s3.NewFromConfig(config)
}

func ProvideSNSClient(config aws.Config) *sns.Client {
	return sns.NewFromConfig(config)
}

func ProvideBedrockClient(config aws.Config) *bedrockruntime.Client {
	return bedrockruntime.NewFromConfig(config)
}

func ProvideOrchestrator(sfnClient *sfn.Client, dao *requestdao.DAO, config *services.Config) (*orchestrator.Orchestrator, error) {
	if config.StateMachineArn == "" {
		return nil, fmt.Errorf("STATE_MACHINE_ARN required")
	}

	// a nil *DAO must not become a non-nil Tracker
	var tracker orchestrator.Tracker
	if dao != nil {
		tracker = dao
	}
	return orchestrator.New(sfnClient, config.StateMachineArn, tracker), nil
}
