// Package pipeline sequences Convert, Validate and Apply for a single
// request. Each stage reads the artifacts of the previous one, writes its
// own, and returns a handoff record; any failure is published to operators
// and returned as a Failure without advancing the pipeline.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/executor"
	"github.com/savaki/tf-provisioner/internal/generator"
	"github.com/savaki/tf-provisioner/internal/notify"
	"github.com/savaki/tf-provisioner/internal/policy"
	"github.com/segmentio/ksuid"
)

// ArtifactStore is implemented by *artifacts.Store
type ArtifactStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	PutFile(ctx context.Context, bucket, key, path string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// PolicyGate is implemented by *policy.Validator
type PolicyGate interface {
	ValidateSource(ctx context.Context, source string) (*policy.ValidationResult, error)
}

// StatusRecorder persists state transitions. Recording is best effort and
// the recorded value is never read back by a stage.
type StatusRecorder interface {
	Record(ctx context.Context, requestID, state, message string) error
}

// Config holds the values every stage needs
type Config struct {
	Bucket      string          // Artifact and state bucket
	Region      string          // Region terraform deploys into
	SandboxRoot string          // Parent of per-request sandboxes; os.TempDir() when empty
	Executor    executor.Config // Terraform binary resolution, environment and timeout
}

type Option func(*Pipeline)

// WithPolicy enables the policy gate in Validate
func WithPolicy(gate PolicyGate) Option {
	return func(p *Pipeline) {
		p.policy = gate
	}
}

// WithRecorder records state transitions as stages run
func WithRecorder(recorder StatusRecorder) Option {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithIDGenerator overrides how Convert mints request ids
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

type Pipeline struct {
	store     ArtifactStore
	generator generator.Generator
	notifier  notify.Notifier
	policy    PolicyGate
	recorder  StatusRecorder
	config    Config
	newID     func() string
}

func New(store ArtifactStore, gen generator.Generator, notifier notify.Notifier, config Config, opts ...Option) *Pipeline {
	if config.Region == "" {
		config.Region = executor.DefaultRegion
	}
	if config.Executor.Region == "" {
		config.Executor.Region = config.Region
	}
	config.Executor = config.Executor.WithDefaults()

	p := &Pipeline{
		store:     store,
		generator: gen,
		notifier:  notifier,
		config:    config,
		newID:     NewRequestID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewRequestID mints a request identifier
func NewRequestID() string {
	return ksuid.New().String()
}

// withStage scopes the context logger to one stage of one request
func withStage(ctx context.Context, stage Stage, requestID string) (context.Context, *zerolog.Logger) {
	logger := zerolog.Ctx(ctx).With().
		Str("request_id", requestID).
		Str("stage", string(stage)).
		Logger()
	return logger.WithContext(ctx), &logger
}

func (p *Pipeline) record(ctx context.Context, requestID string, state State, message string) {
	if p.recorder == nil || requestID == "" {
		return
	}
	if err := p.recorder.Record(ctx, requestID, string(state), message); err != nil {
		zerolog.Ctx(ctx).Warn().
			Err(err).
			Str("state", string(state)).
			Msg("Unable to record pipeline state")
	}
}

// fail builds the Failure for err, records it and publishes the
// notification. A notification error is logged and never replaces err.
func (p *Pipeline) fail(ctx context.Context, stage Stage, requestID string, err error) *Failure {
	logger := zerolog.Ctx(ctx)

	failure := &Failure{
		Stage:     stage,
		Kind:      Classify(err),
		RequestID: requestID,
		Err:       err,
	}

	logger.Error().
		Err(err).
		Str("kind", string(failure.Kind)).
		Msg("Stage failed")

	// a reused id belongs to an earlier attempt whose record must stand
	if !errors.Is(err, tferrors.ErrRequestReused) {
		p.record(ctx, requestID, StateFailed, failure.Error())
	}

	if p.notifier != nil {
		// publish even when ctx is already canceled
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		if nerr := p.notifier.Notify(notifyCtx, stage.Subject(), failure.Message()); nerr != nil {
			logger.Error().
				Err(nerr).
				Msg("Unable to publish failure notification")
		}
	}

	return failure
}
