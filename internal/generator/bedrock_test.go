package generator

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockBedrockClient struct {
	invokeModelFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockBedrockClient) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if m.invokeModelFunc != nil {
		return m.invokeModelFunc(ctx, params, optFns...)
	}
	return nil, errors.New("invokeModelFunc not set")
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func respond(body string) func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
		return &bedrockruntime.InvokeModelOutput{Body: []byte(body)}, nil
	}
}

func TestBedrock_Generate(t *testing.T) {
	var captured *bedrockruntime.InvokeModelInput
	client := &mockBedrockClient{
		invokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			captured = params
			return &bedrockruntime.InvokeModelOutput{
				Body: []byte(`{"content":[{"type":"text","text":"` + "```hcl\\nprovider \\\"aws\\\" {}\\n```" + `"}],"stop_reason":"end_turn"}`),
			}, nil
		},
	}

	text, err := New(client).Generate(testContext(), "create an S3 bucket named demo")
	require.NoError(t, err)
	assert.Equal(t, "```hcl\nprovider \"aws\" {}\n```", text)

	require.NotNil(t, captured)
	assert.Equal(t, DefaultModelID, aws.ToString(captured.ModelId))
	assert.Equal(t, "application/json", aws.ToString(captured.ContentType))
	assert.Equal(t, "application/json", aws.ToString(captured.Accept))

	var request messagesRequest
	require.NoError(t, json.Unmarshal(captured.Body, &request))
	assert.Equal(t, "bedrock-2023-05-31", request.AnthropicVersion)
	assert.Equal(t, 4096, request.MaxTokens)
	assert.Equal(t, 0.7, request.Temperature)
	assert.Equal(t, 0.9, request.TopP)
	require.Len(t, request.Messages, 1)
	assert.Equal(t, "user", request.Messages[0].Role)
	assert.True(t, strings.Contains(request.Messages[0].Content[0].Text, "Requirement: create an S3 bucket named demo"))
}

func TestBedrock_GenerateOptions(t *testing.T) {
	var captured *bedrockruntime.InvokeModelInput
	client := &mockBedrockClient{
		invokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
			captured = params
			return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[{"type":"text","text":"provider \"aws\" {}"}]}`)}, nil
		},
	}

	_, err := New(client, WithModelID("anthropic.claude-3-haiku-20240307-v1:0"), WithMaxTokens(1024)).Generate(testContext(), "a vpc")
	require.NoError(t, err)
	assert.Equal(t, "anthropic.claude-3-haiku-20240307-v1:0", aws.ToString(captured.ModelId))

	var request messagesRequest
	require.NoError(t, json.Unmarshal(captured.Body, &request))
	assert.Equal(t, 1024, request.MaxTokens)
}

func TestBedrock_GenerateFailures(t *testing.T) {
	tests := []struct {
		name    string
		request string
		client  *mockBedrockClient
	}{
		{
			name:    "empty request",
			request: "  ",
			client:  &mockBedrockClient{},
		},
		{
			name:    "invoke error",
			request: "a bucket",
			client: &mockBedrockClient{
				invokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
					return nil, errors.New("throttled")
				},
			},
		},
		{
			name:    "malformed body",
			request: "a bucket",
			client:  &mockBedrockClient{invokeModelFunc: respond(`not json`)},
		},
		{
			name:    "no text content",
			request: "a bucket",
			client:  &mockBedrockClient{invokeModelFunc: respond(`{"content":[]}`)},
		},
		{
			name:    "blank text",
			request: "a bucket",
			client:  &mockBedrockClient{invokeModelFunc: respond(`{"content":[{"type":"text","text":"  "}]}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.client).Generate(testContext(), tt.request)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tferrors.ErrGeneration), "want ErrGeneration, got %v", err)
		})
	}
}
