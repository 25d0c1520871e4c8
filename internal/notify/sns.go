// Package notify publishes terminal pipeline failures to an SNS topic.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
)

// SNS caps subjects at 100 characters
const maxSubjectLength = 100

// SNSAPI is the subset of the SNS client used here
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier delivers a subject and message to operators
type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

type SNS struct {
	client   SNSAPI
	topicARN string
}

func NewSNS(client SNSAPI, topicARN string) *SNS {
	return &SNS{
		client:   client,
		topicARN: topicARN,
	}
}

func (s *SNS) Notify(ctx context.Context, subject, message string) (err error) {
	logger := zerolog.Ctx(ctx)

	defer func(begin time.Time) {
		logger.Info().
			Interface("error", err).
			Str("topic_arn", s.topicARN).
			Str("subject", subject).
			Dur("duration", time.Since(begin)).
			Msg("Published notification")
	}(time.Now())

	if s.topicARN == "" {
		return fmt.Errorf("no notification topic configured")
	}

	if len(subject) > maxSubjectLength {
		subject = subject[:maxSubjectLength]
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", s.topicARN, err)
	}
	return nil
}

// Log writes notifications to the context logger. Used when no topic is configured.
type Log struct{}

func (Log) Notify(ctx context.Context, subject, message string) error {
	zerolog.Ctx(ctx).Warn().
		Str("subject", subject).
		Str("message", message).
		Msg("Pipeline notification")
	return nil
}
