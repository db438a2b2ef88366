package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"hsmt-backend/internal/shared/telemetry"
)

const defaultVisibilitySeconds = 1200

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQS is the AWS-hosted bus. Queue names resolve to urlPrefix + name.
type SQS struct {
	client    sqsAPI
	urlPrefix string
	backoff   time.Duration
}

// NewSQS constructs an SQS-backed bus.
func NewSQS(ctx context.Context, region, urlPrefix string, backoff time.Duration) (*SQS, error) {
	if strings.TrimSpace(urlPrefix) == "" {
		return nil, fmt.Errorf("SQS_QUEUE_URL_PREFIX is required")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSQS(sqs.NewFromConfig(cfg), urlPrefix, backoff), nil
}

func newSQS(client sqsAPI, urlPrefix string, backoff time.Duration) *SQS {
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &SQS{client: client, urlPrefix: urlPrefix, backoff: backoff}
}

func (s *SQS) queueURL(queue string) string {
	return s.urlPrefix + queue
}

// Publish delivers a message to the named queue.
func (s *SQS) Publish(ctx context.Context, queue string, body []byte) error {
	_, err := s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL(queue)),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

// Consume long-polls the queue one message at a time.
func (s *SQS) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	url := s.queueURL(queue)
	out := make(chan *Delivery)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			resp, err := s.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:            aws.String(url),
				MaxNumberOfMessages: 1,
				WaitTimeSeconds:     20,
				VisibilityTimeout:   defaultVisibilitySeconds,
			})
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				telemetry.Error("queue.sqs.receive_failed", map[string]any{"queue": queue, "error": err.Error()})
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.backoff):
				}
				continue
			}
			for _, m := range resp.Messages {
				receipt := aws.ToString(m.ReceiptHandle)
				d := NewDelivery(aws.ToString(m.MessageId), []byte(aws.ToString(m.Body)), false,
					func() error {
						_, err := s.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
							QueueUrl:      aws.String(url),
							ReceiptHandle: aws.String(receipt),
						})
						return err
					},
					func(requeue bool) error {
						if requeue {
							// left in flight; SQS redelivers after the visibility timeout
							return nil
						}
						_, err := s.client.DeleteMessage(context.Background(), &sqs.DeleteMessageInput{
							QueueUrl:      aws.String(url),
							ReceiptHandle: aws.String(receipt),
						})
						return err
					},
				)
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close is a no-op; the SDK client holds no persistent connection.
func (s *SQS) Close() error { return nil }

var _ Bus = (*SQS)(nil)
