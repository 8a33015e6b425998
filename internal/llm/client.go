package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

var (
	// ErrRateLimited возвращается, пока клиент выдерживает паузу после ответа 429.
	ErrRateLimited = errors.New("client is rate limited")
	// ErrEmptyResponse возвращается, когда сервер не прислал ни одного варианта ответа.
	ErrEmptyResponse = errors.New("empty completion response")
)

const (
	defaultRateLimitPause = 30 * time.Second
	healthTimeout         = 5 * time.Second
)

// Config содержит параметры подключения к OpenAI-совместимому серверу.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// Client — потокобезопасный клиент chat completions, возвращающий ответ в виде JSON-объекта.
type Client struct {
	id    string
	model string
	api   *openai.Client
	log   *slog.Logger

	mu             sync.Mutex
	unhealthyUntil time.Time
	rateLimitPause time.Duration
	now            func() time.Time
}

// ClientOption определяет функциональную опцию для конфигурации клиента.
type ClientOption func(*Client)

// WithLogger устанавливает логгер клиента.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRateLimitPause задает паузу после ответа 429.
func WithRateLimitPause(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.rateLimitPause = d
		}
	}
}

// NewClient создает клиента. Пустой BaseURL означает api.openai.com.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{}

	c := &Client{
		id:             cfg.Name,
		model:          cfg.Model,
		api:            openai.NewClientWithConfig(apiCfg),
		log:            slog.Default(),
		rateLimitPause: defaultRateLimitPause,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("client_id", c.id)
	return c
}

// ID возвращает имя клиента.
func (c *Client) ID() string {
	return c.id
}

// CompleteJSON отправляет системный промпт и данные, ожидая JSON-объект в ответ.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if err := c.checkRateLimit(); err != nil {
		return "", err
	}

	c.log.DebugContext(ctx, "Executing chat completion", "model", c.model, "payload_bytes", len(userContent))
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		// Нулевая температура не сериализуется (omitempty), берем минимальную положительную.
		Temperature:    math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		c.handleError(err)
		c.log.WarnContext(ctx, "Chat completion failed", "error", err)
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Health проверяет доступность сервера запросом списка моделей.
func (c *Client) Health(ctx context.Context) error {
	if err := c.checkRateLimit(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	if _, err := c.api.ListModels(ctx); err != nil {
		c.handleError(err)
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now().Before(c.unhealthyUntil) {
		c.log.Debug("Health check failed: client is rate limited", "until", c.unhealthyUntil)
		return ErrRateLimited
	}
	return nil
}

// handleError выставляет паузу, если сервер ответил 429.
func (c *Client) handleError(err error) {
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	status := 0
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status != http.StatusTooManyRequests {
		return
	}

	c.mu.Lock()
	c.unhealthyUntil = c.now().Add(c.rateLimitPause)
	until := c.unhealthyUntil
	c.mu.Unlock()
	c.log.Warn("Client got 429, set unhealthy", "wait_duration", c.rateLimitPause, "until", until)
}
