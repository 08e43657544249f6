package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	apperrors "geomet-mapfile/internal/common/errors"
)

// SNSAPI is the subset of the SNS client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// FailedLayer is one entry of a failure notification.
type FailedLayer struct {
	Layer string `json:"layer"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// FailureNotice reports the layers a generation run had to skip.
type FailureNotice struct {
	RunID    string        `json:"runId"`
	Target   string        `json:"target,omitempty"`
	Failed   []FailedLayer `json:"failed"`
	Total    int           `json:"total"`
	Occurred time.Time     `json:"occurred"`
}

type SNSClient struct {
	client   SNSAPI
	topicARN string
}

func NewSNSClient(ctx context.Context, region, topicARN string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewSNSClientWithAPI(sns.NewFromConfig(cfg), topicARN), nil
}

func NewSNSClientWithAPI(api SNSAPI, topicARN string) *SNSClient {
	return &SNSClient{client: api, topicARN: topicARN}
}

// NotifyFailures publishes notice to the configured topic and returns the
// SNS message id. A notice without failures is not sent.
func (s *SNSClient) NotifyFailures(ctx context.Context, notice FailureNotice) (string, error) {
	if len(notice.Failed) == 0 {
		return "", nil
	}

	body, err := json.Marshal(notice)
	if err != nil {
		return "", fmt.Errorf("encode failure notice: %w", err)
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(fmt.Sprintf("geomet-mapfile: %d of %d layers failed", len(notice.Failed), notice.Total)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"runId": {
				DataType:    aws.String("String"),
				StringValue: aws.String(notice.RunID),
			},
		},
	})
	if err != nil {
		return "", apperrors.NewExternalServiceError("sns", err)
	}
	return aws.ToString(out.MessageId), nil
}
