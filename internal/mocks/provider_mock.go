package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"galgame-server/internal/models"
	"galgame-server/internal/provider"
)

// MockProvider is a mock type for the provider.Provider type
type MockProvider struct {
	mock.Mock
}

// TextChat provides a mock function with given fields: ctx, prompt, systemPrompt, history
func (_m *MockProvider) TextChat(ctx context.Context, prompt string, systemPrompt string, history []models.Message) (string, error) {
	ret := _m.Called(ctx, prompt, systemPrompt, history)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, string, []models.Message) string); ok {
		r0 = rf(ctx, prompt, systemPrompt, history)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string, string, []models.Message) error); ok {
		r1 = rf(ctx, prompt, systemPrompt, history)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockProvider creates a new instance of MockProvider. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ provider.Provider = (*MockProvider)(nil)
