package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/imrishuroy/go-esewa-storefront/internal/events"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.inputs = append(m.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestPublisher_Publish(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/events")

	env, err := events.New(events.TypeOrderCancelled, "test", "order-1", events.OrderPayload{OrderID: "order-1"})
	if err != nil {
		t.Fatalf("events.New: %v", err)
	}
	if err := p.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.inputs))
	}
	in := mock.inputs[0]
	if *in.QueueUrl != "https://sqs.local/events" {
		t.Fatalf("queue url mismatch: %s", *in.QueueUrl)
	}
	if got := *in.MessageAttributes["event_type"].StringValue; got != events.TypeOrderCancelled {
		t.Fatalf("event_type attribute = %s", got)
	}
	if got := *in.MessageAttributes["correlation_id"].StringValue; got != "order-1" {
		t.Fatalf("correlation_id attribute = %s", got)
	}

	var decoded events.Envelope
	if err := json.Unmarshal([]byte(*in.MessageBody), &decoded); err != nil {
		t.Fatalf("body is not an envelope: %v", err)
	}
	if decoded.EventID != env.EventID {
		t.Fatalf("event id mismatch")
	}
}

func TestPublisher_SendError(t *testing.T) {
	p := NewPublisher(&mockSQS{err: errors.New("boom")}, "q")
	if err := p.SendMessage(context.Background(), "{}", nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMetricsEmitter_Count(t *testing.T) {
	mock := &mockCloudWatch{}
	m := NewMetricsEmitter(mock, "Storefront")

	err := m.Count(context.Background(), "OrdersPlaced", 1, map[string]string{"producer": "api", "gateway": "esewa"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if len(mock.inputs) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(mock.inputs))
	}
	datum := mock.inputs[0].MetricData[0]
	if *datum.MetricName != "OrdersPlaced" || *datum.Value != 1 {
		t.Fatalf("unexpected datum: %+v", datum)
	}
	if len(datum.Dimensions) != 2 || *datum.Dimensions[0].Name != "gateway" {
		t.Fatalf("dimensions not sorted: %+v", datum.Dimensions)
	}
}
