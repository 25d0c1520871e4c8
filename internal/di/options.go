package di

import "context"

// ParameterFile is the path of a YAML parameter file. When set it replaces
// SSM and environment lookups.
type ParameterFile string

// Option is a function that configures the dependency injection container.
type Option func(*options)

// WithContext sets the context handed to providers. It should carry the
// logger, as providers log through zerolog.Ctx.
func WithContext(ctx context.Context) Option {
	return func(opts *options) {
		opts.ctx = ctx
	}
}

// WithParameterFile loads configuration from a YAML file
func WithParameterFile(filename string) Option {
	return func(opts *options) {
		opts.parameterFile = ParameterFile(filename)
	}
}

// WithProviders registers extra constructors after the core providers.
// Constructors may depend on anything already in the container, and may not
// provide a type the container already has.
//
//	WithProviders(
//	    func(config *services.Config) *Sweeper { return NewSweeper(config.SandboxRoot) },
//	)
func WithProviders(providers ...any) Option {
	return func(opts *options) {
		opts.providers = append(opts.providers, providers...)
	}
}

type options struct {
	ctx           context.Context
	parameterFile ParameterFile
	providers     []any
}
