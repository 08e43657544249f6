package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "geomet-mapfile/internal/common/errors"
)

type mockSNS struct {
	input *sns.PublishInput
	err   error
	calls int
}

func (m *mockSNS) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func sampleNotice() FailureNotice {
	return FailureNotice{
		RunID: "run-1",
		Failed: []FailedLayer{{
			Layer: "HRDPS.CONTINENTAL_TT",
			Code:  "MISSING_TIME_EXTENT",
			Error: "no time extent",
		}},
		Total:    5,
		Occurred: time.Date(2020, 1, 15, 13, 31, 31, 0, time.UTC),
	}
}

func TestNotifyFailures_Publishes(t *testing.T) {
	api := &mockSNS{}
	c := NewSNSClientWithAPI(api, "arn:aws:sns:ca-central-1:123:geomet")

	id, err := c.NotifyFailures(context.Background(), sampleNotice())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)

	require.NotNil(t, api.input)
	assert.Equal(t, "arn:aws:sns:ca-central-1:123:geomet", aws.ToString(api.input.TopicArn))
	assert.Equal(t, "geomet-mapfile: 1 of 5 layers failed", aws.ToString(api.input.Subject))
	assert.Equal(t, "run-1", aws.ToString(api.input.MessageAttributes["runId"].StringValue))

	var decoded FailureNotice
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.input.Message)), &decoded))
	assert.Equal(t, "HRDPS.CONTINENTAL_TT", decoded.Failed[0].Layer)
}

func TestNotifyFailures_NothingToSend(t *testing.T) {
	api := &mockSNS{}
	c := NewSNSClientWithAPI(api, "arn")

	id, err := c.NotifyFailures(context.Background(), FailureNotice{RunID: "run-2", Total: 3})
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Zero(t, api.calls)
}

func TestNotifyFailures_Error(t *testing.T) {
	c := NewSNSClientWithAPI(&mockSNS{err: errors.New("throttled")}, "arn")

	_, err := c.NotifyFailures(context.Background(), sampleNotice())
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeExternalService))
}
