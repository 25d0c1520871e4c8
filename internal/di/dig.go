// Package di wires the pipeline's AWS clients, configuration and stage
// collaborators together with uber's dig.
package di

import (
	"context"
	"fmt"

	"go.uber.org/dig"
)

// Container is the subset of *dig.Container used by entry points and tests
type Container interface {
	Invoke(function any, opts ...dig.InvokeOption) error
	Provide(constructor any, opts ...dig.ProvideOption) error
	Scope(name string, opts ...dig.ScopeOption) *dig.Scope
}

// Get resolves a single value of type T from the container
//
// Example:
//
//	p, err := Get[*pipeline.Pipeline](container)
func Get[T any](container Container) (want T, err error) {
	callback := func(got T) {
		want = got
	}
	if err := container.Invoke(callback); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to resolve %T: %w", zero, err)
	}
	return want, nil
}

// MustGet is Get for values that are known to resolve; it panics otherwise
func MustGet[T any](container Container) T {
	want, err := Get[T](container)
	if err != nil {
		panic(err)
	}
	return want
}

// New creates a container for env. The environment name, the context set by
// WithContext and the parameter file are registered alongside the core
// providers; WithProviders adds more.
//
// Example:
//
//	container, err := New("production",
//	    WithContext(ctx),
//	    WithProviders(
//	        func() *Database { return &Database{} },
//	        func(db *Database, env string) *Service { return &Service{DB: db, Env: env} },
//	    ),
//	)
func New(env string, opts ...Option) (Container, error) {
	// Build options
	o := options{ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	// Create dig container
	container := dig.New()
	if err := container.Provide(func() string { return env }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() context.Context { return o.ctx }); err != nil {
		return nil, err
	}
	if err := container.Provide(func() ParameterFile { return o.parameterFile }); err != nil {
		return nil, err
	}

	for _, provider := range core {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	for _, provider := range o.providers {
		if err := container.Provide(provider); err != nil {
			return nil, err
		}
	}

	return container, nil
}

var core = []any{
	ProvideAWSConfig,
	ProvideSSMClient,
	ProvideParameterStore,
	ProvideAppConfig,
	ProvideDynamoDB,
	ProvideStepFunctions,
	ProvideS3Client,
	ProvideSNSClient,
	ProvideBedrockClient,
	ProvideRequestDAO,
	ProvideOrchestrator,
	ProvideArtifactStore,
	ProvideGenerator,
	ProvideNotifier,
	ProvidePolicy,
	ProvidePipeline,
	ProvideRunner,
}
