package services

import (
	"context"

	"slack-calendar/internal/ports"
)

// MockLLMClient - мок-реализация ports.LLMClient для тестирования
type MockLLMClient struct {
	CompleteJSONFunc func(ctx context.Context, systemPrompt, userContent string) (string, error)
	HealthFunc       func(ctx context.Context) error
	Name             string
}

// CompleteJSON реализует интерфейс ports.LLMClient
func (m *MockLLMClient) CompleteJSON(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if m.CompleteJSONFunc != nil {
		return m.CompleteJSONFunc(ctx, systemPrompt, userContent)
	}
	return `{"events": []}`, nil
}

// Health реализует интерфейс ports.LLMClient
func (m *MockLLMClient) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// ID реализует интерфейс ports.LLMClient
func (m *MockLLMClient) ID() string {
	if m.Name == "" {
		return "mock-llm"
	}
	return m.Name
}

var _ ports.LLMClient = (*MockLLMClient)(nil)
