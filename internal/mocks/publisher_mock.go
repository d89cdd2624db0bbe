package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"galgame-server/internal/messaging"
)

// MockPublisher is a mock type for the messaging.Publisher type
type MockPublisher struct {
	mock.Mock
}

func (_m *MockPublisher) PublishReply(ctx context.Context, event messaging.ReplyEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

func (_m *MockPublisher) PublishResult(ctx context.Context, event messaging.ResultEvent) error {
	ret := _m.Called(ctx, event)
	return ret.Error(0)
}

func NewMockPublisher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockPublisher {
	m := &MockPublisher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ messaging.Publisher = (*MockPublisher)(nil)
