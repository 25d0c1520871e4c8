// Package generator turns a natural-language infrastructure request into
// Terraform source using a Bedrock-hosted Anthropic model.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
)

const (
	DefaultModelID     = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9

	anthropicVersion = "bedrock-2023-05-31"
	contentTypeJSON  = "application/json"
)

const promptTemplate = `You are an expert AWS architect and Terraform developer.
Convert the following infrastructure requirement into valid Terraform code.
Include appropriate providers, resources, and variables.
Use best practices for AWS infrastructure and Terraform code.

Requirement: %s

Respond with ONLY the Terraform code, no explanations or comments outside of the code.`

// BedrockAPI is the subset of the Bedrock runtime client used here
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Generator produces Terraform source from a prompt
type Generator interface {
	Generate(ctx context.Context, request string) (string, error)
}

type Option func(*Bedrock)

func WithModelID(modelID string) Option {
	return func(b *Bedrock) {
		if modelID != "" {
			b.modelID = modelID
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(b *Bedrock) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// Bedrock calls the Anthropic Messages API through InvokeModel
type Bedrock struct {
	client      BedrockAPI
	modelID     string
	maxTokens   int
	temperature float64
	topP        float64
}

func New(client BedrockAPI, opts ...Option) *Bedrock {
	b := &Bedrock{
		client:      client,
		modelID:     DefaultModelID,
		maxTokens:   DefaultMaxTokens,
		temperature: DefaultTemperature,
		topP:        DefaultTopP,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type messagesRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float64   `json:"temperature"`
	TopP             float64   `json:"top_p"`
	Messages         []message `json:"messages"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// Prompt renders the instruction sent to the model for request
func Prompt(request string) string {
	return fmt.Sprintf(promptTemplate, request)
}

// Generate returns the model's text verbatim. It may still carry markup
// fencing; callers sanitize before use.
func (b *Bedrock) Generate(ctx context.Context, request string) (text string, err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("model_id", b.modelID).
			Int("length", len(text)).
			Dur("duration", time.Since(begin)).
			Msg("Generated terraform")
	}(time.Now())

	if strings.TrimSpace(request) == "" {
		return "", fmt.Errorf("%w: empty request", tferrors.ErrGeneration)
	}

	body, err := json.Marshal(messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.maxTokens,
		Temperature:      b.temperature,
		TopP:             b.topP,
		Messages: []message{
			{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: Prompt(request)}},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal model request: %w", err)
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String(contentTypeJSON),
		Accept:      aws.String(contentTypeJSON),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("%w: invoke model %s: %v", tferrors.ErrGeneration, b.modelID, err)
	}

	var response messagesResponse
	if err := json.Unmarshal(output.Body, &response); err != nil {
		return "", fmt.Errorf("%w: unable to decode model response: %v", tferrors.ErrGeneration, err)
	}

	for _, block := range response.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			if response.StopReason == "max_tokens" {
				logger.Warn().Str("model_id", b.modelID).Msg("Model output truncated at max_tokens")
			}
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: model returned no text", tferrors.ErrGeneration)
}
