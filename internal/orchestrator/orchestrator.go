package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/dao/requestdao"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/segmentio/ksuid"
)

// stateConverting is the first state a started request is recorded in
const stateConverting = "CONVERTING"

// SFNAPI is the subset of the Step Functions client used by Orchestrator
type SFNAPI interface {
	StartExecution(ctx context.Context, params *sfn.StartExecutionInput, optFns ...func(*sfn.Options)) (*sfn.StartExecutionOutput, error)
}

// Tracker persists requests as they are started. Implemented by *requestdao.DAO.
type Tracker interface {
	Create(ctx context.Context, input requestdao.CreateInput) (requestdao.Record, error)
	StartExecution(ctx context.Context, requestID, executionArn string) error
}

// Orchestrator manages Step Functions execution lifecycle
type Orchestrator struct {
	sfnClient       SFNAPI
	stateMachineArn string
	tracker         Tracker
	newID           func() string
}

// New creates a new Orchestrator instance. tracker may be nil, in which case
// requests are started without a status record.
func New(sfnClient SFNAPI, stateMachineArn string, tracker Tracker) *Orchestrator {
	return &Orchestrator{
		sfnClient:       sfnClient,
		stateMachineArn: stateMachineArn,
		tracker:         tracker,
		newID:           func() string { return ksuid.New().String() },
	}
}

// Execution identifies a started pipeline run
type Execution struct {
	RequestID    string `json:"requestId"`
	ExecutionArn string `json:"executionArn"`
}

// StartExecution mints a request id, records the request, and starts the
// state machine with a ConvertInput carrying that id. The request id doubles
// as the execution name.
func (o *Orchestrator) StartExecution(ctx context.Context, request string) (execution Execution, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("request_id", execution.RequestID).
			Str("execution_arn", execution.ExecutionArn).
			Dur("duration", time.Since(begin)).
			Msg("Started pipeline execution")
	}(time.Now())

	if strings.TrimSpace(request) == "" {
		return Execution{}, fmt.Errorf("%w: input", tferrors.ErrMissingField)
	}

	input := models.ConvertInput{
		Input:     request,
		RequestID: o.newID(),
	}
	execution.RequestID = input.RequestID

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return execution, fmt.Errorf("failed to marshal step function input: %w", err)
	}

	if o.tracker != nil {
		_, err := o.tracker.Create(ctx, requestdao.CreateInput{
			RequestID: input.RequestID,
			Input:     request,
			State:     stateConverting,
		})
		if err != nil {
			return execution, fmt.Errorf("failed to create request record: %w", err)
		}
	}

	result, err := o.sfnClient.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(o.stateMachineArn),
		Name:            aws.String(input.RequestID),
		Input:           aws.String(string(inputJSON)),
	})
	if err != nil {
		return execution, fmt.Errorf("failed to start step function execution: %w", err)
	}

	execution.ExecutionArn = aws.ToString(result.ExecutionArn)

	if o.tracker != nil {
		if err := o.tracker.StartExecution(ctx, input.RequestID, execution.ExecutionArn); err != nil {
			return execution, fmt.Errorf("failed to update request record: %w", err)
		}
	}

	return execution, nil
}
