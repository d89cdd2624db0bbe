package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"galgame-server/internal/models"
	"galgame-server/internal/persona"
)

// MockRegistry is a mock type for the persona.Registry type
type MockRegistry struct {
	mock.Mock
}

func (_m *MockRegistry) Default(ctx context.Context) (*models.Persona, error) {
	ret := _m.Called(ctx)

	var r0 *models.Persona
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Persona)
	}
	return r0, ret.Error(1)
}

func (_m *MockRegistry) Get(ctx context.Context, id string) (*models.Persona, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.Persona
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Persona)
	}
	return r0, ret.Error(1)
}

func NewMockRegistry(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockRegistry {
	m := &MockRegistry{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ persona.Registry = (*MockRegistry)(nil)

// MockConversationStore is a mock type for the persona.ConversationStore type
type MockConversationStore struct {
	mock.Mock
}

func (_m *MockConversationStore) Current(ctx context.Context, sessionID string) (*models.Conversation, error) {
	ret := _m.Called(ctx, sessionID)

	var r0 *models.Conversation
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Conversation)
	}
	return r0, ret.Error(1)
}

func (_m *MockConversationStore) Bind(ctx context.Context, sessionID string, personaID *string) (*models.Conversation, error) {
	ret := _m.Called(ctx, sessionID, personaID)

	var r0 *models.Conversation
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Conversation)
	}
	return r0, ret.Error(1)
}

func NewMockConversationStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockConversationStore {
	m := &MockConversationStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ persona.ConversationStore = (*MockConversationStore)(nil)
