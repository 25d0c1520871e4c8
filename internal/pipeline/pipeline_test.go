package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/savaki/tf-provisioner/internal/artifacts"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const requestID = "2HFj3kLmNoPqRsTuVwXy"

func TestConvert(t *testing.T) {
	f := newFixture(t, scriptHooks{})

	result := f.pipeline.Convert(testContext(), models.ConvertInput{Input: "create an S3 bucket named demo"})
	output, err := result.Unwrap()
	require.NoError(t, err)

	assert.Equal(t, requestID, output.RequestID)
	assert.Equal(t, testBucket, output.S3Bucket)
	assert.Equal(t, "terraform_code/2HFj3kLmNoPqRsTuVwXy/main.tf", output.S3Key)
	assert.Equal(t, models.StatusSuccess, output.Status)

	stored, ok := f.store.object(testBucket, output.S3Key)
	require.True(t, ok)
	assert.Equal(t, wellFormedSource, stored, "generated source is stored verbatim")
	assert.Equal(t, []string{"create an S3 bucket named demo"}, f.generator.requests)
	assert.Empty(t, f.notifier.sent)
	assert.Equal(t, []string{"CONVERTING"}, f.recorder.states)
}

func TestConvert_KeepsSuppliedRequestID(t *testing.T) {
	f := newFixture(t, scriptHooks{})

	result := f.pipeline.Convert(testContext(), models.ConvertInput{Input: "a vpc", RequestID: "supplied"})
	require.True(t, result.OK())
	assert.Equal(t, "supplied", result.Value.RequestID)
	assert.Equal(t, artifacts.SourceKey("supplied"), result.Value.S3Key)
}

func TestConvert_RejectsReusedRequestID(t *testing.T) {
	f := newFixture(t, scriptHooks{})
	seedSource(t, f, "resource \"aws_vpc\" \"main\" {}\n")

	result := f.pipeline.Convert(testContext(), models.ConvertInput{Input: "a vpc", RequestID: requestID})
	require.False(t, result.OK())
	assert.Equal(t, KindInvalidInput, result.Failure.Kind)
	assert.True(t, errors.Is(result.Failure, tferrors.ErrRequestReused))

	assert.Empty(t, f.generator.requests)
	assert.Empty(t, f.store.puts)
	assert.Empty(t, f.recorder.states)

	source, ok := f.store.object(testBucket, artifacts.SourceKey(requestID))
	require.True(t, ok)
	assert.Equal(t, "resource \"aws_vpc\" \"main\" {}\n", source)
}

func TestConvert_Failures(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		text     string
		genErr   error
		wantKind Kind
	}{
		{
			name:     "blank input",
			input:    " ",
			wantKind: KindInvalidInput,
		},
		{
			name:     "generator error",
			input:    "a bucket",
			genErr:   errors.New("throttled"),
			wantKind: KindInternal,
		},
		{
			name:     "generation error",
			input:    "a bucket",
			genErr:   tferrors.ErrGeneration,
			wantKind: KindGeneration,
		},
		{
			name:     "empty source",
			input:    "a bucket",
			text:     "\n  \n",
			wantKind: KindGeneration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, scriptHooks{})
			f.generator.text = tt.text
			f.generator.err = tt.genErr

			result := f.pipeline.Convert(testContext(), models.ConvertInput{Input: tt.input})
			require.False(t, result.OK())
			assert.Equal(t, tt.wantKind, result.Failure.Kind)
			assert.Equal(t, StageConvert, result.Failure.Stage)
			assert.Equal(t, models.StatusFailed, result.Value.Status)
			assert.NotEmpty(t, result.Value.Message)

			_, err := result.Unwrap()
			assert.Error(t, err)

			require.Len(t, f.notifier.sent, 1)
			assert.Equal(t, "Error in NLP to Terraform Conversion", f.notifier.sent[0].subject)
			assert.Contains(t, f.notifier.sent[0].message, requestID)
			assert.Empty(t, f.store.puts)
		})
	}
}

func seedSource(t *testing.T, f *fixture, source string) models.ValidateInput {
	t.Helper()
	key := artifacts.SourceKey(requestID)
	f.store.mu.Lock()
	f.store.objects[testBucket+"/"+key] = []byte(source)
	f.store.mu.Unlock()
	return models.ValidateInput{RequestID: requestID, S3Bucket: testBucket, S3Key: key}
}

func readValidation(t *testing.T, f *fixture) models.ValidationResult {
	t.Helper()
	data, ok := f.store.object(testBucket, artifacts.ValidationKey(requestID))
	require.True(t, ok, "validation result should be stored")

	var document models.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(data), &document))
	return document
}

func TestValidate(t *testing.T) {
	f := newFixture(t, scriptHooks{})
	input := seedSource(t, f, wellFormedSource)

	result := f.pipeline.Validate(testContext(), input)
	output, err := result.Unwrap()
	require.NoError(t, err)

	assert.Equal(t, input.S3Key, output.S3TerraformKey)
	assert.Equal(t, artifacts.ValidationKey(requestID), output.S3ValidationKey)
	assert.Equal(t, models.StatusSuccess, output.Status)

	document := readValidation(t, f)
	assert.Equal(t, "PASSED", document.SyntaxCheck)
	assert.Equal(t, []string{}, document.Errors)
	assert.Equal(t, models.StatusSuccess, document.Status)

	// the stored artifact is never rewritten
	stored, _ := f.store.object(testBucket, input.S3Key)
	assert.Equal(t, wellFormedSource, stored)
}

func TestValidate_SyntaxFailure(t *testing.T) {
	f := newFixture(t, scriptHooks{})
	input := seedSource(t, f, `resource "aws_s3_bucket" "demo" {`)

	result := f.pipeline.Validate(testContext(), input)
	require.False(t, result.OK())
	assert.Equal(t, KindSyntax, result.Failure.Kind)
	assert.True(t, errors.Is(result.Failure, tferrors.ErrSyntax))
	assert.Contains(t, result.Failure.Error(), "unbalanced braces: 1 opening vs 0 closing")
	assert.Contains(t, result.Failure.Error(), "no provider block found")

	document := readValidation(t, f)
	assert.Equal(t, "FAILED", document.SyntaxCheck)
	assert.Len(t, document.Errors, 2)
	assert.Equal(t, models.StatusFailed, document.Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, "Error in Terraform Validation", f.notifier.sent[0].subject)
	assert.Contains(t, f.notifier.sent[0].message, "unbalanced braces")
}

func TestValidate_PolicyFailure(t *testing.T) {
	validator, err := policy.NewValidator(context.Background(), []string{"aws_iam_user"})
	require.NoError(t, err)

	f := newFixture(t, scriptHooks{}, WithPolicy(validator))
	input := seedSource(t, f, `provider "aws" {}

resource "aws_iam_user" "deployer" {
  name = "deployer"
}`)

	result := f.pipeline.Validate(testContext(), input)
	require.False(t, result.OK())
	assert.Equal(t, KindPolicy, result.Failure.Kind)

	document := readValidation(t, f)
	assert.Equal(t, "PASSED", document.SyntaxCheck)
	assert.Equal(t, "FAILED", document.PolicyCheck)
	assert.Equal(t, []string{"Resource type 'aws_iam_user' is not allowed (aws_iam_user.deployer)"}, document.PolicyViolations)
}

func TestValidate_ParseFailureIsNotPolicy(t *testing.T) {
	validator, err := policy.NewValidator(context.Background(), []string{"aws_iam_user"})
	require.NoError(t, err)

	f := newFixture(t, scriptHooks{}, WithPolicy(validator))
	input := seedSource(t, f, `provider "aws" {}

resource "aws_s3_bucket" "demo" { bucket = }`)

	result := f.pipeline.Validate(testContext(), input)
	require.False(t, result.OK())
	assert.Equal(t, KindParse, result.Failure.Kind)
	assert.True(t, errors.Is(result.Failure, tferrors.ErrParse))
	assert.False(t, errors.Is(result.Failure, tferrors.ErrPolicy))

	document := readValidation(t, f)
	assert.Equal(t, "FAILED", document.SyntaxCheck)
	assert.Empty(t, document.PolicyCheck)
	assert.Empty(t, document.PolicyViolations)
	require.Len(t, document.Errors, 1)
	assert.Contains(t, document.Errors[0], "does not parse")
	assert.Equal(t, models.StatusFailed, document.Status)

	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0].message, "kind: parse")
}

func TestValidate_MissingArtifact(t *testing.T) {
	f := newFixture(t, scriptHooks{})

	result := f.pipeline.Validate(testContext(), models.ValidateInput{
		RequestID: requestID,
		S3Bucket:  testBucket,
		S3Key:     artifacts.SourceKey(requestID),
	})
	require.False(t, result.OK())
	assert.Equal(t, KindArtifact, result.Failure.Kind)
	assert.Empty(t, f.store.puts)
}

func TestValidate_MissingFields(t *testing.T) {
	f := newFixture(t, scriptHooks{})

	result := f.pipeline.Validate(testContext(), models.ValidateInput{RequestID: requestID})
	require.False(t, result.OK())
	assert.Equal(t, KindInvalidInput, result.Failure.Kind)
	assert.Contains(t, result.Failure.Error(), "s3Bucket")
	assert.Contains(t, result.Failure.Error(), "s3Key")
}

func TestFail_NotificationErrorDoesNotMask(t *testing.T) {
	f := newFixture(t, scriptHooks{})
	f.notifier.err = errors.New("sns unavailable")
	f.recorder.err = errors.New("table unavailable")

	input := seedSource(t, f, `resource "x" "y" {}`)
	result := f.pipeline.Validate(testContext(), input)
	require.False(t, result.OK())
	assert.Equal(t, KindSyntax, result.Failure.Kind)
	assert.True(t, errors.Is(result.Failure, tferrors.ErrSyntax))
	assert.Len(t, f.notifier.sent, 1)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: nil, want: ""},
		{err: tferrors.ErrTimeout, want: KindTimeout},
		{err: errors.Join(errors.New("apply"), tferrors.ErrToolExecution), want: KindToolExecution},
		{err: tferrors.ErrBinaryNotFound, want: KindBinaryNotFound},
		{err: tferrors.ErrGeneration, want: KindGeneration},
		{err: tferrors.ErrSyntax, want: KindSyntax},
		{err: tferrors.ErrParse, want: KindParse},
		{err: tferrors.ErrPolicy, want: KindPolicy},
		{err: tferrors.ErrMissingField, want: KindInvalidInput},
		{err: tferrors.ErrArtifactNotFound, want: KindArtifact},
		{err: context.Canceled, want: KindCanceled},
		{err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "Classify(%v)", tt.err)
	}
}

func TestState_Next(t *testing.T) {
	tests := []struct {
		from State
		ok   bool
		want State
	}{
		{from: StateConverting, ok: true, want: StateValidating},
		{from: StateValidating, ok: true, want: StateApplying},
		{from: StateApplying, ok: true, want: StateSucceeded},
		{from: StateConverting, ok: false, want: StateFailed},
		{from: StateValidating, ok: false, want: StateFailed},
		{from: StateApplying, ok: false, want: StateFailed},
		{from: StateSucceeded, ok: false, want: StateSucceeded},
		{from: StateFailed, ok: true, want: StateFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.Next(tt.ok), "%s.Next(%v)", tt.from, tt.ok)
	}

	assert.Equal(t, StateValidating, stateOf(StageValidate))
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateApplying.Terminal())
}
