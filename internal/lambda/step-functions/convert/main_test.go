package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/savaki/tf-provisioner/internal/models"
	"github.com/savaki/tf-provisioner/internal/pipeline"
)

type mockConverter struct {
	convertFunc func(ctx context.Context, input models.ConvertInput) pipeline.Result[models.ConvertOutput]
}

func (m *mockConverter) Convert(ctx context.Context, input models.ConvertInput) pipeline.Result[models.ConvertOutput] {
	return m.convertFunc(ctx, input)
}

func testContext() context.Context {
	logger := zerolog.New(io.Discard)
	return logger.WithContext(context.Background())
}

func TestHandleConvert(t *testing.T) {
	converter := &mockConverter{
		convertFunc: func(ctx context.Context, input models.ConvertInput) pipeline.Result[models.ConvertOutput] {
			if input.Input != "a bucket" {
				t.Errorf("input = %q, want %q", input.Input, "a bucket")
			}
			return pipeline.Result[models.ConvertOutput]{
				Value: models.ConvertOutput{
					RequestID: "2HFj3kLmNoPqRsTuVwXy",
					S3Bucket:  "state-bucket",
					S3Key:     "terraform_code/2HFj3kLmNoPqRsTuVwXy/main.tf",
					Status:    models.StatusSuccess,
				},
			}
		},
	}

	output, err := NewHandler(converter).HandleConvert(testContext(), &models.ConvertInput{Input: "a bucket"})
	if err != nil {
		t.Fatalf("HandleConvert() unexpected error: %v", err)
	}
	if output.Status != models.StatusSuccess {
		t.Errorf("Status = %v, want %v", output.Status, models.StatusSuccess)
	}
	if output.S3Key != "terraform_code/2HFj3kLmNoPqRsTuVwXy/main.tf" {
		t.Errorf("S3Key = %q", output.S3Key)
	}
}

func TestHandleConvert_Failure(t *testing.T) {
	cause := errors.New("model unavailable")
	converter := &mockConverter{
		convertFunc: func(ctx context.Context, input models.ConvertInput) pipeline.Result[models.ConvertOutput] {
			return pipeline.Result[models.ConvertOutput]{
				Value: models.ConvertOutput{Status: models.StatusFailed},
				Failure: &pipeline.Failure{
					Stage: pipeline.StageConvert,
					Kind:  pipeline.KindGeneration,
					Err:   cause,
				},
			}
		},
	}

	output, err := NewHandler(converter).HandleConvert(testContext(), &models.ConvertInput{Input: "a bucket"})
	if !errors.Is(err, cause) {
		t.Errorf("HandleConvert() error = %v, want %v", err, cause)
	}
	if output != nil {
		t.Errorf("HandleConvert() output = %+v, want nil", output)
	}
}

func TestHandleConvert_NilInput(t *testing.T) {
	if _, err := NewHandler(&mockConverter{}).HandleConvert(testContext(), nil); err == nil {
		t.Error("HandleConvert() expected error for nil input")
	}
}
