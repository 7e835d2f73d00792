//nolint:testpackage // Mock must be in sqs package to access unexported types
package sqs

import (
	"context"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/slackmgr/types"
)

const mockQueueURLPrefix = "https://sqs.us-east-1.amazonaws.com/123456789/"

// mockSQSClient is a mock implementation of the sqsClient interface. Unset
// hooks succeed; GetQueueUrl then derives the URL from the queue name.
type mockSQSClient struct {
	getQueueURL             func(input *sqs.GetQueueUrlInput) (*sqs.GetQueueUrlOutput, error)
	sendMessage             func(input *sqs.SendMessageInput) (*sqs.SendMessageOutput, error)
	receiveMessage          func(input *sqs.ReceiveMessageInput) (*sqs.ReceiveMessageOutput, error)
	deleteMessage           func(input *sqs.DeleteMessageInput) (*sqs.DeleteMessageOutput, error)
	changeMessageVisibility func(input *sqs.ChangeMessageVisibilityInput) (*sqs.ChangeMessageVisibilityOutput, error)

	getQueueURLCalls atomic.Int32
	sendCalls        atomic.Int32
	receiveCalls     atomic.Int32
	deleteCalls      atomic.Int32
	visibilityCalls  atomic.Int32
}

func (m *mockSQSClient) GetQueueUrl(_ context.Context, params *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	m.getQueueURLCalls.Add(1)

	if m.getQueueURL != nil {
		return m.getQueueURL(params)
	}

	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(mockQueueURLPrefix + aws.ToString(params.QueueName))}, nil
}

func (m *mockSQSClient) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sendCalls.Add(1)

	if m.sendMessage != nil {
		return m.sendMessage(params)
	}

	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQSClient) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	m.receiveCalls.Add(1)

	if m.receiveMessage != nil {
		return m.receiveMessage(params)
	}

	return &sqs.ReceiveMessageOutput{}, nil
}

func (m *mockSQSClient) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleteCalls.Add(1)

	if m.deleteMessage != nil {
		return m.deleteMessage(params)
	}

	return &sqs.DeleteMessageOutput{}, nil
}

func (m *mockSQSClient) ChangeMessageVisibility(_ context.Context, params *sqs.ChangeMessageVisibilityInput, _ ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error) {
	m.visibilityCalls.Add(1)

	if m.changeMessageVisibility != nil {
		return m.changeMessageVisibility(params)
	}

	return &sqs.ChangeMessageVisibilityOutput{}, nil
}

// mockLogger discards everything it is given.
type mockLogger struct{}

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithField(_ string, _ any) types.Logger { return m }

//nolint:ireturn // Must return interface to implement types.Logger
func (m *mockLogger) WithFields(_ map[string]any) types.Logger { return m }
func (m *mockLogger) Debug(_ string)                           {}
func (m *mockLogger) Debugf(_ string, _ ...any)                {}
func (m *mockLogger) Info(_ string)                            {}
func (m *mockLogger) Infof(_ string, _ ...any)                 {}
func (m *mockLogger) Warn(_ string)                            {}
func (m *mockLogger) Warnf(_ string, _ ...any)                 {}
func (m *mockLogger) Error(_ string)                           {}
func (m *mockLogger) Errorf(_ string, _ ...any)                {}
func (m *mockLogger) Fatal(_ string)                           {}
func (m *mockLogger) Fatalf(_ string, _ ...any)                {}

//nolint:ireturn // Returns interface for convenience in tests
func newMockLogger() types.Logger {
	return &mockLogger{}
}
