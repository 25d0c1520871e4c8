package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"gopkg.in/yaml.v3"
)

const (
	DefaultRegion         = "us-east-1"
	DefaultTerraformLayer = "/opt/bin"
	DefaultSearchRoot     = "/opt"
	DefaultTimeout        = 13 * time.Minute
	DefaultModelID        = "anthropic.claude-3-sonnet-20240229-v1:0"
)

// Parameter names, relative to /{env}/tf-provisioner in SSM and used as keys
// in the YAML parameter file
const (
	ParamStateBucket     = "state-bucket"
	ParamSNSTopic        = "sns-topic"
	ParamTerraformLayer  = "terraform-layer"
	ParamSearchRoot      = "terraform-search-root"
	ParamRegion          = "terraform-region"
	ParamTimeout         = "terraform-timeout"
	ParamModelID         = "bedrock-model-id"
	ParamStateMachineArn = "state-machine-arn"
	ParamRequestTable    = "request-table"
	ParamDeniedResources = "policy-denied-resources"
	ParamSandboxRoot     = "sandbox-root"
)

// envVars maps parameter names to the environment variables read by EnvParameterStore
var envVars = map[string]string{
	ParamStateBucket:     "STATE_BUCKET",
	ParamSNSTopic:        "SNS_TOPIC",
	ParamTerraformLayer:  "TERRAFORM_LAYER",
	ParamSearchRoot:      "TERRAFORM_SEARCH_ROOT",
	ParamRegion:          "TERRAFORM_REGION",
	ParamTimeout:         "TERRAFORM_TIMEOUT",
	ParamModelID:         "BEDROCK_MODEL_ID",
	ParamStateMachineArn: "STATE_MACHINE_ARN",
	ParamRequestTable:    "REQUEST_TABLE",
	ParamDeniedResources: "POLICY_DENIED_RESOURCES",
	ParamSandboxRoot:     "SANDBOX_ROOT",
}

// Config holds all application configuration values
type Config struct {
	StateBucket     string        // Bucket holding generated code, state, plans and logs
	SNSTopic        string        // Topic ARN receiving failure notifications
	TerraformLayer  string        // Directory expected to hold the terraform binary
	SearchRoot      string        // Root searched when the binary is not in TerraformLayer
	Region          string        // Region for the provider, backend and CLI environment
	Timeout         time.Duration // Upper bound on each terraform subcommand
	ModelID         string        // Bedrock model used for generation
	StateMachineArn string
	RequestTable    string
	DeniedResources []string // Resource types rejected by the policy gate
	SandboxRoot     string   // Parent of per-request working directories; empty uses os.TempDir
}

// ParameterStore defines the interface for accessing configuration parameters
type ParameterStore interface {
	// GetParameter retrieves a single parameter by name
	GetParameter(ctx context.Context, name string) (string, error)

	// GetConfig loads all application configuration
	GetConfig(ctx context.Context) (*Config, error)
}

// NewConfig builds a Config from parameter values keyed by parameter name,
// applying defaults for anything unset
func NewConfig(params map[string]string) (*Config, error) {
	config := &Config{
		StateBucket:     params[ParamStateBucket],
		SNSTopic:        params[ParamSNSTopic],
		TerraformLayer:  params[ParamTerraformLayer],
		SearchRoot:      params[ParamSearchRoot],
		Region:          params[ParamRegion],
		Timeout:         DefaultTimeout,
		ModelID:         params[ParamModelID],
		StateMachineArn: params[ParamStateMachineArn],
		RequestTable:    params[ParamRequestTable],
		DeniedResources: splitList(params[ParamDeniedResources]),
		SandboxRoot:     params[ParamSandboxRoot],
	}

	if v := params[ParamTimeout]; v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", ParamTimeout, v, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be positive", ParamTimeout, v)
		}
		config.Timeout = timeout
	}

	// Set defaults
	if config.TerraformLayer == "" {
		config.TerraformLayer = DefaultTerraformLayer
	}
	if config.SearchRoot == "" {
		config.SearchRoot = DefaultSearchRoot
	}
	if config.Region == "" {
		config.Region = DefaultRegion
	}
	if config.ModelID == "" {
		config.ModelID = DefaultModelID
	}

	return config, nil
}

// splitList parses a comma separated list, dropping blanks
func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// SSMParameterStore implements ParameterStore using AWS Systems Manager Parameter Store
type SSMParameterStore struct {
	client SSMAPI
	env    string
	mu     sync.RWMutex
	cache  map[string]string
}

// SSMAPI is the subset of the SSM client used by SSMParameterStore
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)
}

// NewSSMParameterStore creates a new SSM-backed parameter store
func NewSSMParameterStore(client SSMAPI, env string) *SSMParameterStore {
	return &SSMParameterStore{
		client: client,
		env:    env,
		cache:  make(map[string]string),
	}
}

func (s *SSMParameterStore) prefix() string {
	return fmt.Sprintf("/%s/tf-provisioner", s.env)
}

// GetParameter retrieves a single parameter from SSM Parameter Store
func (s *SSMParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	// Check cache first
	s.mu.RLock()
	if value, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: boolPtr(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get parameter %s: %w", name, err)
	}

	if result.Parameter == nil || result.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s not found", name)
	}

	value := *result.Parameter.Value

	s.mu.Lock()
	s.cache[name] = value
	s.mu.Unlock()

	return value, nil
}

// GetConfig loads all application configuration from Parameter Store
func (s *SSMParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	prefix := s.prefix()
	params := make(map[string]string)

	var token *string
	for {
		result, err := s.client.GetParametersByPath(ctx, &ssm.GetParametersByPathInput{
			Path:           &prefix,
			Recursive:      boolPtr(true),
			WithDecryption: boolPtr(true),
			NextToken:      token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get parameters by path %s: %w", prefix, err)
		}

		s.mu.Lock()
		for _, param := range result.Parameters {
			if param.Name != nil && param.Value != nil {
				s.cache[*param.Name] = *param.Value
				params[path.Base(*param.Name)] = *param.Value
			}
		}
		s.mu.Unlock()

		if result.NextToken == nil {
			break
		}
		token = result.NextToken
	}

	return NewConfig(params)
}

// EnvParameterStore implements ParameterStore using environment variables
// This is a NoOp implementation for local development without AWS connection
type EnvParameterStore struct {
	env    string
	getenv func(string) string
}

// NewEnvParameterStore creates a new environment variable-backed parameter store
func NewEnvParameterStore(env string) *EnvParameterStore {
	return &EnvParameterStore{
		env:    env,
		getenv: os.Getenv,
	}
}

// GetParameter retrieves a parameter from environment variables
func (e *EnvParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	if key, ok := envVars[name]; ok {
		return e.getenv(key), nil
	}
	return e.getenv(name), nil
}

// GetConfig loads all application configuration from environment variables
func (e *EnvParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	params := make(map[string]string, len(envVars))
	for name, key := range envVars {
		params[name] = e.getenv(key)
	}
	return NewConfig(params)
}

// FileParameterStore implements ParameterStore using a YAML file of
// parameter names to values, for local runs
type FileParameterStore struct {
	filename string
}

// NewFileParameterStore creates a parameter store reading the given YAML file
func NewFileParameterStore(filename string) *FileParameterStore {
	return &FileParameterStore{filename: filename}
}

func (f *FileParameterStore) load() (map[string]string, error) {
	data, err := os.ReadFile(f.filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter file %s: %w", f.filename, err)
	}

	params := map[string]string{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("failed to parse parameter file %s: %w", f.filename, err)
	}
	return params, nil
}

// GetParameter retrieves a single parameter from the file
func (f *FileParameterStore) GetParameter(ctx context.Context, name string) (string, error) {
	params, err := f.load()
	if err != nil {
		return "", err
	}
	value, ok := params[name]
	if !ok {
		return "", fmt.Errorf("parameter %s not found", name)
	}
	return value, nil
}

// GetConfig loads all application configuration from the file
func (f *FileParameterStore) GetConfig(ctx context.Context) (*Config, error) {
	params, err := f.load()
	if err != nil {
		return nil, err
	}
	return NewConfig(params)
}

func boolPtr(b bool) *bool {
	return &b
}
