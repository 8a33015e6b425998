package ports

import "context"

// LLMClient — клиент OpenAI-совместимого сервера, отвечающего в формате JSON-объекта.
type LLMClient interface {
	CompleteJSON(ctx context.Context, systemPrompt, userContent string) (string, error)
	Health(ctx context.Context) error
	ID() string
}

// LLMRouter выдает работоспособного клиента из пула.
type LLMRouter interface {
	GetClient(ctx context.Context) (LLMClient, error)
	Stop()
}

// Strategy определяет интерфейс для стратегии выбора клиента.
type Strategy interface {
	Next(clients []LLMClient) (LLMClient, error)
}
