package fcm

import (
	"context"
	"errors"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockTopicManager struct {
	mock.Mock
}

func (m *mockTopicManager) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	args := m.Called(ctx, tokens, topic)
	resp, _ := args.Get(0).(*messaging.TopicManagementResponse)
	return resp, args.Error(1)
}

func TestRegister_SubscribesToken(t *testing.T) {
	mgr := new(mockTopicManager)
	mgr.On("SubscribeToTopic", mock.Anything, []string{"tok-1"}, "all_users").
		Return(&messaging.TopicManagementResponse{SuccessCount: 1}, nil).Once()

	c := NewClientWithManager(mgr, "earnzy", "/topics/all_users", zap.NewNop())
	assert.NoError(t, c.Register(context.Background(), "tok-1"))
	mgr.AssertExpectations(t)
}

func TestRegister_Failures(t *testing.T) {
	mgr := new(mockTopicManager)
	mgr.On("SubscribeToTopic", mock.Anything, []string{"bad"}, "all_users").
		Return(&messaging.TopicManagementResponse{
			FailureCount: 1,
			Errors:       []*messaging.ErrorInfo{{Index: 0, Reason: "invalid-argument"}},
		}, nil).Once()
	mgr.On("SubscribeToTopic", mock.Anything, []string{"down"}, "all_users").
		Return(nil, errors.New("unavailable")).Once()

	c := NewClientWithManager(mgr, "earnzy", "all_users", zap.NewNop())

	err := c.Register(context.Background(), "bad")
	assert.ErrorContains(t, err, "invalid-argument")

	err = c.Register(context.Background(), "down")
	assert.ErrorContains(t, err, "unavailable")
}

func TestNewClient_RejectsBadCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), []byte(`{"type":"nonsense"}`), "all_users", zap.NewNop())
	assert.Error(t, err)
}
